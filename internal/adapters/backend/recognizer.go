package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/okian/kiosk/internal/domain/recognition"
)

// Recognize uploads one JPEG crop to the recognize-crop endpoint. Only ctx
// bounds the call. Every failure maps onto a recognition sentinel so callers can treat them
// uniformly as a failed call.
func (c *Client) Recognize(ctx context.Context, jpeg []byte) (recognition.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image_file"; filename="crop.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return recognition.Response{}, fmt.Errorf("%w: %v", recognition.ErrTransport, err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return recognition.Response{}, fmt.Errorf("%w: %v", recognition.ErrTransport, err)
	}
	if c.threshold > 0 {
		if err := mw.WriteField("threshold", strconv.FormatFloat(c.threshold, 'f', -1, 64)); err != nil {
			return recognition.Response{}, fmt.Errorf("%w: %v", recognition.ErrTransport, err)
		}
	}
	if err := mw.Close(); err != nil {
		return recognition.Response{}, fmt.Errorf("%w: %v", recognition.ErrTransport, err)
	}

	var resp *recognition.Response
	err = c.do(ctx, http.MethodPost, PathRecognize, true, mw.FormDataContentType(), &buf, &resp)
	if err != nil {
		return recognition.Response{}, recognitionError(err)
	}
	if resp == nil {
		return recognition.Response{}, recognitionError(fmt.Errorf("%w: %s: null body", ErrDecode, PathRecognize))
	}
	return *resp, nil
}

func recognitionError(err error) error {
	switch {
	case errors.Is(err, ErrNoToken):
		return fmt.Errorf("%w: %w", recognition.ErrUnauthorized, err)
	case errors.Is(err, ErrForbidden):
		return fmt.Errorf("%w: %w", recognition.ErrUnauthorized, err)
	case errors.Is(err, ErrStatus):
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return fmt.Errorf("%w: %w", recognition.ErrUnauthorized, err)
		}
		return fmt.Errorf("%w: %w", recognition.ErrStatus, err)
	case errors.Is(err, ErrDecode):
		return fmt.Errorf("%w: %w", recognition.ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %w", recognition.ErrTransport, err)
	}
}
