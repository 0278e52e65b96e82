package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/umbra-run/umbrad/internal/collab"
	"github.com/umbra-run/umbrad/internal/config"
	"github.com/umbra-run/umbrad/internal/display"
	"github.com/umbra-run/umbrad/internal/project"
	"github.com/umbra-run/umbrad/internal/scheduler"
	"github.com/umbra-run/umbrad/internal/tasks"
)

// buildScheduler wires a Scheduler from a loaded Config: the task
// registry (built-ins plus any tasks_path plugin manifests),
// the Box-or-skip uploader, the SMTP-or-skip mailer, and the daemon's
// log sink.
func buildScheduler(cfg *config.Config, log *display.Logger) (*scheduler.Scheduler, error) {
	reg := tasks.NewRegistry()
	if cfg.TasksPath != "" {
		if err := tasks.LoadPluginManifests(reg, cfg.TasksPath); err != nil {
			return nil, fmt.Errorf("loading task plugins from %s: %w", cfg.TasksPath, err)
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("task registry: %w", err)
	}

	uploader := buildUploader(cfg, log)
	mailer := buildMailer(cfg, log)

	schedCfg := scheduler.Config{
		RunsRoot:           cfg.RunsRoot(),
		ExperimentsRoot:    cfg.ExperimentsRoot(),
		StatusRoot:         cfg.StatusRoot(),
		ProcessedRoot:      cfg.ProcessedRoot(),
		PackagedRoot:       cfg.PackagedRoot(),
		NThreads:           cfg.NThreads,
		NThreadsPerProject: cfg.NThreadsPerProject,
		ReadOnly:           cfg.ReadOnly,
		MinAge:             cfg.MinAge(),
		MaxAge:             cfg.MaxAge(),
		GraceWindow:        cfg.GraceWindow(),
		PollInterval:       cfg.Poll(),
		ReportPath:         cfg.SaveReport.Path,
		ReportMaxWidth:     cfg.SaveReport.MaxWidth,
		ImplicitTasksPath:  cfg.ImplicitTasksPath,
		TaskConfig:         cfg.Tasks,
	}

	s := scheduler.New(schedCfg, reg, uploader, mailer, log)
	s.AlertHook = func(p *project.Project) {
		alertFailure(mailer, p, log)
	}
	return s, nil
}

// alertFailure sends a best-effort notification when a Project
// transitions to FAILED; delivery errors
// are logged, not propagated, matching the fire-and-forget Mailer
// contract.
func alertFailure(mailer tasks.Mailer, p *project.Project, log *display.Logger) {
	to := make([]string, 0, len(p.Contacts))
	for _, addr := range p.Contacts {
		to = append(to, addr)
	}
	if len(to) == 0 {
		return
	}
	subject := fmt.Sprintf("[umbrad] project %s failed", p.Name)
	body := fmt.Sprintf("Project %s (run %s) failed:\n\n%s", p.Name, p.RunID, p.FailureException)
	if err := mailer.Send(context.Background(), to, subject, body, false); err != nil {
		log.Warnf("alert mail for project %s: %v", p.Name, err)
	}
}

// buildUploader selects the uploader: a configured, non-skip
// credentials path gets the HTTP uploader pointed at the endpoint URL
// named by the credentials file's contents; otherwise a skip uploader,
// logged at debug if skip was explicit or the daemon is read-only, at
// warn otherwise.
func buildUploader(cfg *config.Config, log *display.Logger) tasks.Uploader {
	if cfg.Box.CredentialsPath != "" && !cfg.Box.Skip {
		if data, err := os.ReadFile(cfg.Box.CredentialsPath); err == nil {
			endpoint := strings.TrimSpace(string(data))
			if endpoint != "" {
				return collab.NewHTTPUploader(endpoint)
			}
		}
	}
	msg := "no box configuration given; skipping uploads"
	if cfg.ReadOnly || cfg.Box.Skip {
		log.Debugf(msg)
	} else {
		log.Warnf(msg)
	}
	return collab.SkipUploader{}
}

func buildMailer(cfg *config.Config, log *display.Logger) tasks.Mailer {
	if cfg.Mailer.CredentialsPath != "" || cfg.Mailer.Host != "" {
		if cfg.Mailer.Skip {
			log.Debugf("mailer configured but skip is set; skipping emails")
			return collab.NoopMailer{}
		}
		return collab.NewSMTPMailer(cfg.Mailer.Host, cfg.Mailer.Port, cfg.Mailer.Auth, cfg.Mailer.User, cfg.Mailer.Password, cfg.Mailer.From)
	}
	msg := "no mailer configuration given; skipping emails"
	if cfg.ReadOnly || cfg.Mailer.Skip {
		log.Debugf(msg)
	} else {
		log.Warnf(msg)
	}
	return collab.NoopMailer{}
}
