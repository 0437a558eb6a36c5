package api

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/http"

	"github.com/btouchard/infotafel/internal/media"
)

const uploadField = "files"

// multipartUploads yields the "files" parts of a multipart body one at a
// time. A part longer than limit is cut at limit+1 bytes so the pipeline
// rejects it without the rest being buffered.
func multipartUploads(mr *multipart.Reader, limit int64) iter.Seq2[media.Upload, error] {
	return func(yield func(media.Upload, error) bool) {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(media.Upload{}, uploadErr(err))
				return
			}
			if part.FormName() != uploadField {
				_ = part.Close()
				continue
			}

			name := part.FileName()
			data, err := io.ReadAll(io.LimitReader(part, limit+1))
			_ = part.Close()
			if err != nil {
				yield(media.Upload{}, uploadErr(err))
				return
			}
			if !yield(media.Upload{Name: name, Data: data}, nil) {
				return
			}
		}
	}
}

func uploadErr(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: %v", errMalformedUpload, err)
}
