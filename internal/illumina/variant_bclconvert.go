package illumina

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/umbra-run/umbrad/internal/samplesheet"
)

// bclConvertVariant covers the NovaSeq/BCL Convert secondary-analysis
// layout: sample sheet under Data/ with its own [BCLConvert_Data]
// table, fastq under a numbered Analysis/<n>/Data/fastq tree, and a JSON
// completion marker reporting AnalysisStatus == "Succeeded". This
// variant rejects itself when the sheet declares a fastq compression
// scheme the pipeline cannot read (anything but gzip).
type bclConvertVariant struct{}

func (bclConvertVariant) name() Instrument { return InstrumentBCLConvert }

func (bclConvertVariant) locate(runPath, dir string) (sampleSheet, fastqDir, marker string, ok bool) {
	sheet := filepath.Join(dir, "Data", "SampleSheet.csv")
	if _, err := os.Stat(sheet); err != nil {
		return "", "", "", false
	}
	fastq := filepath.Join(dir, "Analysis", "1", "Data", "fastq")
	markerPath := filepath.Join(dir, "Analysis", "1", "Data", "Secondary_Analysis_Complete.txt")
	return sheet, fastq, markerPath, true
}

type analysisStatusMarker struct {
	AnalysisStatus string `json:"AnalysisStatus"`
}

func (bclConvertVariant) complete(marker string) (bool, error) {
	data, err := os.ReadFile(marker)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	var status analysisStatusMarker
	if err := json.Unmarshal(data, &status); err != nil {
		return false, nil // malformed/partial write: treat as not-yet-complete
	}
	return status.AnalysisStatus == "Succeeded", nil
}

func (bclConvertVariant) reject(sheet *samplesheet.SampleSheet) string {
	compression := strings.TrimSpace(sheet.Settings["OutputFastqCompression"])
	if compression != "" && !strings.EqualFold(compression, "gzip") {
		return "unreadable fastq compression: " + compression
	}
	return ""
}
