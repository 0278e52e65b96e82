package illumina

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/umbra-run/umbrad/internal/samplesheet"
)

// fastqCompletePhrase is what the instrument writes into its marker
// file when fastq generation really finished; a marker that exists but
// lacks the phrase (a partial copy, say) does not count.
const fastqCompletePhrase = "Fastq generation complete"

// nextSeqVariant covers the newer layout (NextSeq/MiniSeq class
// instruments): sample sheet is the copy the instrument wrote out after
// using it (SampleSheetUsed.csv), fastq files land in a flat Fastq
// directory, and completion is signalled by CopyComplete.txt containing
// the known completion phrase.
type nextSeqVariant struct{}

func (nextSeqVariant) name() Instrument { return InstrumentNextSeq }

func (nextSeqVariant) locate(runPath, dir string) (sampleSheet, fastqDir, marker string, ok bool) {
	sheet := filepath.Join(dir, "SampleSheetUsed.csv")
	if _, err := os.Stat(sheet); err != nil {
		return "", "", "", false
	}
	return sheet, filepath.Join(dir, "Fastq"), filepath.Join(dir, "CopyComplete.txt"), true
}

func (nextSeqVariant) complete(marker string) (bool, error) {
	data, err := os.ReadFile(marker)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return strings.Contains(string(data), fastqCompletePhrase), nil
}

func (nextSeqVariant) reject(sheet *samplesheet.SampleSheet) string {
	return ""
}
