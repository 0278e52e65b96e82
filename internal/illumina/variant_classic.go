package illumina

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/umbra-run/umbrad/internal/samplesheet"
)

// classicVariant covers the MiSeq/HiSeq layout: sample sheet directly
// in the Alignment directory, fastq files in the shared BaseCalls
// directory, and a text marker whose numeric stage field reaches 3 on
// completion.
type classicVariant struct{}

func (classicVariant) name() Instrument { return InstrumentClassic }

func (classicVariant) locate(runPath, dir string) (sampleSheet, fastqDir, marker string, ok bool) {
	sheet := filepath.Join(dir, "SampleSheet.csv")
	if _, err := os.Stat(sheet); err != nil {
		return "", "", "", false
	}
	fastq := filepath.Join(runPath, "Data", "Intensities", "BaseCalls")
	return sheet, fastq, filepath.Join(dir, "Basecalling_Netcopy_complete.txt"), true
}

func (classicVariant) complete(marker string) (bool, error) {
	f, err := os.Open(marker)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ",")
		if len(fields) == 0 {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(fields[0])); err == nil && n == 3 {
			return true, nil
		}
	}
	return false, scanner.Err()
}

func (classicVariant) reject(sheet *samplesheet.SampleSheet) string {
	return ""
}
