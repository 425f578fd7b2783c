package protocol

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
)

// Part is one section of a multipart/form-data body.
type Part struct {
	Name     string
	Filename string
	Contents []byte
	Header   map[string]string
}

// EncodeMultipart renders parts as a multipart/form-data body and returns
// it with the matching Content-Type (boundary included).
func EncodeMultipart(parts []Part) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.Filename != "" {
			h.Set("Content-Disposition",
				fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Name, p.Filename))
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, p.Name))
		}
		for k, v := range p.Header {
			h.Set(k, v)
		}

		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(p.Contents); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
