package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"filesync-server/pkg/checksum"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var fs = afero.NewOsFs()

const defaultBlockSize = 64 << 10

// signatureFile is what `signature` writes and `delta` reads.
type signatureFile struct {
	BlockSize int              `json:"block_size"`
	Size      int64            `json:"size"`
	Blocks    []checksum.Block `json:"blocks"`
}

// deltaFile is what `delta` writes and `apply` reads.
type deltaFile struct {
	BlockSize int           `json:"block_size"`
	Ops       []checksum.Op `json:"ops"`
}

func newSignatureCmd() *cobra.Command {
	var blockSize int
	var out string

	cmd := &cobra.Command{
		Use:   "signature <file>",
		Short: "Print the block signature of a local file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := signFile(args[0], blockSize)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out, sig)
		},
	}
	cmd.Flags().IntVar(&blockSize, "block-size", defaultBlockSize, "block size in bytes")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newDeltaCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "delta <signature.json> <target>",
		Short: "Compute the ops that rebuild target from the signed base file.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sig signatureFile
			if err := readJSON(args[0], &sig); err != nil {
				return err
			}
			target, err := afero.ReadFile(fs, args[1])
			if err != nil {
				return fmt.Errorf("read target: %w", err)
			}

			delta := deltaFile{
				BlockSize: sig.BlockSize,
				Ops:       checksum.Match(sig.Blocks, sig.BlockSize, target),
			}
			return writeJSON(cmd.OutOrStdout(), out, delta)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "apply <base> <delta.json>",
		Short: "Rebuild a file from its base and a delta.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var delta deltaFile
			if err := readJSON(args[1], &delta); err != nil {
				return err
			}
			base, err := afero.ReadFile(fs, args[0])
			if err != nil {
				return fmt.Errorf("read base: %w", err)
			}

			blocks, _, err := checksum.Sign(bytes.NewReader(base), delta.BlockSize)
			if err != nil {
				return fmt.Errorf("sign base: %w", err)
			}
			rebuilt, err := checksum.Apply(base, blocks, delta.Ops)
			if err != nil {
				return fmt.Errorf("apply delta: %w", err)
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(rebuilt)
				return err
			}
			return afero.WriteFile(fs, out, rebuilt, 0644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func signFile(path string, blockSize int) (*signatureFile, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	blocks, size, err := checksum.Sign(f, blockSize)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", path, err)
	}
	return &signatureFile{BlockSize: blockSize, Size: size, Blocks: blocks}, nil
}

func readJSON(path string, v interface{}) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(stdout io.Writer, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}
