package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mrsinham/bidsforge/internal/bids"
	"github.com/mrsinham/bidsforge/internal/dicom"
	"github.com/mrsinham/bidsforge/internal/preview"
	"github.com/mrsinham/bidsforge/pkg/config"
)

func main() {
	// Define command-line flags
	dicomDir := flag.String("dicom-dir", "", "Directory holding the DICOM series to convert (required unless -interactive)")
	archiveRoot := flag.String("archive", "", "Root of the BIDS archive to append into (required)")
	subject := flag.String("subject", "", "Subject ID, e.g. '01' (required)")
	task := flag.String("task", "", "Task name, e.g. 'faces' (required)")
	session := flag.String("session", "", "Session ID (optional)")
	run := flag.Int("run", 0, "Run number (optional)")
	suffix := flag.String("suffix", "", "Imaging method, e.g. 'bold' (default from config)")
	datatype := flag.String("datatype", "", "BIDS datatype, e.g. 'func' (default from config)")
	createPaths := flag.Bool("create-paths", true, "Create archive paths that do not exist yet")
	previewPath := flag.String("preview", "", "Write a PNG slice mosaic of the last appended volume")
	configPath := flag.String("config", "bidsforge.yaml", "Path to YAML configuration")
	interactive := flag.Bool("interactive", false, "Collect conversion parameters interactively")
	help := flag.Bool("help", false, "Show help message")

	flag.Parse()

	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	params := conversionParams{
		DicomDir: *dicomDir,
		Archive:  *archiveRoot,
		Subject:  *subject,
		Task:     *task,
		Session:  *session,
		Run:      *run,
		Suffix:   *suffix,
		Datatype: *datatype,
	}
	if params.Suffix == "" {
		params.Suffix = cfg.Convert.Suffix
	}
	if params.Datatype == "" {
		params.Datatype = cfg.Convert.Datatype
	}

	if *interactive {
		if err := runWizard(&params); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := params.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	bids.DisableSameAcquisitionCheck = cfg.Checks.DisableSameAcquisitionCheck

	if err := convert(params, cfg, *createPaths, *previewPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type conversionParams struct {
	DicomDir string
	Archive  string
	Subject  string
	Task     string
	Session  string
	Run      int
	Suffix   string
	Datatype string
}

func (p *conversionParams) validate() error {
	switch {
	case p.DicomDir == "":
		return fmt.Errorf("--dicom-dir is required")
	case p.Archive == "":
		return fmt.Errorf("--archive is required")
	case p.Subject == "":
		return fmt.Errorf("--subject is required")
	case p.Task == "":
		return fmt.Errorf("--task is required")
	}
	return nil
}

func (p *conversionParams) requiredMetadata() map[string]any {
	md := map[string]any{
		"subject":  p.Subject,
		"task":     p.Task,
		"suffix":   p.Suffix,
		"datatype": p.Datatype,
	}
	if p.Session != "" {
		md["session"] = p.Session
	}
	if p.Run > 0 {
		md["run"] = p.Run
	}
	return md
}

func convert(params conversionParams, cfg *config.Config, createPaths bool, previewPath string) error {
	fmt.Println("bidsforge: DICOM to BIDS archive")
	fmt.Println()

	incrementals, err := dicom.DirToIncrementals(params.DicomDir,
		params.requiredMetadata(), cfg.DatasetDescription())
	if err != nil {
		return fmt.Errorf("convert DICOM series: %w", err)
	}
	fmt.Printf("Converted %d volume(s) from %s\n", len(incrementals), params.DicomDir)

	archive := bids.NewArchive(params.Archive)
	opts := bids.AppendOptions{CreatePathIfMissing: createPaths}
	for i, inc := range incrementals {
		if err := archive.AppendIncremental(inc, opts); err != nil {
			return fmt.Errorf("append volume %d: %w", i, err)
		}
	}

	last := incrementals[len(incrementals)-1]
	fmt.Printf("Appended to %s/%s\n", params.Archive, last.ImageFilePath())

	if previewPath != "" {
		img, err := archive.GetImage(last.ImageFilePath())
		if err != nil {
			return fmt.Errorf("read back appended image: %w", err)
		}
		if err := preview.WriteMosaic(img, img.NumTimepoints()-1, previewPath); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
		fmt.Printf("Preview written to %s\n", previewPath)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bidsforge --dicom-dir DIR --archive DIR --subject ID --task NAME [options]\n")
	fmt.Fprintf(os.Stderr, "Run 'bidsforge --help' for details\n")
}

func printHelp() {
	fmt.Println("bidsforge converts a DICOM series into BIDS Incrementals and appends")
	fmt.Println("them into a BIDS archive, merging volumes of the same run along the")
	fmt.Println("time axis.")
	fmt.Println()
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  bidsforge --dicom-dir ./scans --archive ./dataset --subject 01 --task faces --run 1")
	fmt.Println("  bidsforge --interactive --archive ./dataset")
}
