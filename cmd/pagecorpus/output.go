package main

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/pagecorpus/codec"
)

// output writes data to stdout in the format chosen with --output.
func output(data any) error {
	return outputTo(os.Stdout, outputFormat, data)
}

func outputTo(w io.Writer, format string, data any) error {
	switch format {
	case "json":
		b, err := codec.MarshalIndent(codec.GoJSON{}, data)
		if err != nil {
			return err
		}

		_, err = w.Write(append(b, '\n'))

		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()

		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
