package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-scope/internal/analyzer"
	"github.com/oszuidwest/zwfm-scope/internal/audio"
	"github.com/oszuidwest/zwfm-scope/internal/state"
	"github.com/oszuidwest/zwfm-scope/internal/types"
)

// analyzeResult is the report printed by the analyze command.
type analyzeResult struct {
	File   string               `json:"file"`
	Status types.AnalyzerStatus `json:"status"`
	State  state.Snapshot       `json:"state"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		blockSize    int
		withWaveform bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Run the analysis pipeline over a mono 16-bit WAV file",
		Long: `Reads the whole file without pacing through the same pipeline the
service uses and prints the final published state as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if blockSize < audio.SpectrumWindow {
				return fmt.Errorf("block size must be at least %d", audio.SpectrumWindow)
			}

			result, err := analyzeFile(args[0], blockSize)
			if err != nil {
				return err
			}
			if !withWaveform {
				result.State.Waveform = nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().IntVar(&blockSize, "block-size", types.DefaultBlockSize, "samples per read")
	cmd.Flags().BoolVar(&withWaveform, "waveform", false, "include the last waveform frame")
	return cmd
}

// analyzeFile runs path through an Analyzer until end of file.
func analyzeFile(path string, blockSize int) (*analyzeResult, error) {
	var readErr error
	published := state.NewPublished()
	a := analyzer.New(&audio.WAVOpener{Path: path}, published, analyzer.Options{
		BlockSize: blockSize,
		Observer:  analyzer.ObserverFunc(func(err error) { readErr = err }),
	})

	if err := a.Start(); err != nil {
		return nil, err
	}
	<-a.Done()

	// Done is closed after the observer ran.
	if readErr != nil {
		return nil, errors.Join(errors.New("analysis ended early"), readErr)
	}

	return &analyzeResult{
		File:   path,
		Status: a.Status(),
		State:  published.Snapshot(),
	}, nil
}
