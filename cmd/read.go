package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jittakal/kafrotator/internal/codec"
	"github.com/jittakal/kafrotator/internal/config/dto"
	"github.com/jittakal/kafrotator/internal/errors"
	"github.com/jittakal/kafrotator/internal/source"
	compression "github.com/jittakal/kafrotator/pkg/codec"
	"github.com/jittakal/kafrotator/pkg/storage"
)

// readFile decodes the published file at path with the configured encoding
// and writes its records to out: one payload per line for line-oriented
// files, key and value separated by a tab for keyed records.
func readFile(ctx context.Context, enc dto.EncodingConfig, backend storage.Backend, path string, out io.Writer, logger *slog.Logger) error {
	src, ok := backend.(storage.Source)
	if !ok {
		return &errors.ConfigurationError{Field: "storage.backend", Reason: backend.Name() + " cannot read files back"}
	}
	r := source.New(src, logger)

	w := bufio.NewWriter(out)
	writeLine := func(line []byte) error {
		if _, err := w.Write(line); err != nil {
			return err
		}
		return w.WriteByte('\n')
	}

	switch enc.Type {
	case "raw", "compressed":
		var c compression.Codec
		if enc.Type == "compressed" {
			var err error
			if c, err = codec.New(enc.Codec); err != nil {
				return err
			}
		}
		if !enc.NewLine {
			if err := copyData(ctx, r, path, c, w); err != nil {
				return err
			}
			break
		}
		if err := r.Lines(ctx, path, c, writeLine); err != nil {
			return err
		}

	case "keyed":
		records, err := r.Records(ctx, path)
		if err != nil {
			return err
		}
		for _, kv := range records {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", kv.Key, kv.Value); err != nil {
				return err
			}
		}

	default:
		return &errors.ConfigurationError{Field: "encoding.type", Reason: "unsupported: " + enc.Type}
	}
	return w.Flush()
}

// copyData writes the payload bytes of an unseparated file verbatim.
func copyData(ctx context.Context, r *source.Reader, path string, c compression.Codec, w io.Writer) error {
	var (
		rc  io.ReadCloser
		err error
	)
	if c == nil {
		rc, err = r.Data(ctx, path)
	} else {
		rc, err = r.Compressed(ctx, path, c)
	}
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}
