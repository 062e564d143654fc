package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	apperrors "htmlpng/internal/pkg/errors"
	"htmlpng/internal/processor"
)

// multipartMemory is how much of a multipart body is kept in memory before
// file parts spill to temporary files.
const multipartMemory = 8 << 20

// renderRequestJSON is the JSON form of a render request. Width and height
// are accepted as numbers or numeric strings; images maps an asset name to
// base64 content.
type renderRequestJSON struct {
	HTML   string            `json:"html"`
	Width  json.RawMessage   `json:"width"`
	Height json.RawMessage   `json:"height"`
	Images map[string]string `json:"images"`
}

// decodeRenderRequest reads r into a RawJob. The returned release func drops
// any temporary files the multipart parser created and must always be
// called.
func decodeRenderRequest(r *http.Request, maxMemory int64) (processor.RawJob, func(), error) {
	noop := func() {}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "multipart/form-data":
		return decodeMultipart(r, maxMemory)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return processor.RawJob{}, noop, bodyError(err)
		}
		return processor.RawJob{
			HTML:   r.PostForm.Get("html"),
			Width:  r.PostForm.Get("width"),
			Height: r.PostForm.Get("height"),
		}, noop, nil
	default:
		raw, err := decodeJSON(r.Body)
		return raw, noop, err
	}
}

func decodeJSON(body io.Reader) (processor.RawJob, error) {
	var req renderRequestJSON
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			// empty body: let validation report the missing html
			return processor.RawJob{}, nil
		}
		return processor.RawJob{}, bodyError(err)
	}

	raw := processor.RawJob{
		HTML:   req.HTML,
		Width:  jsonScalar(req.Width),
		Height: jsonScalar(req.Height),
	}

	names := make([]string, 0, len(req.Images))
	for name := range req.Images {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := decodeBase64(req.Images[name])
		if err != nil {
			return processor.RawJob{}, apperrors.ValidationField("images", "invalid image encoding").
				WithField("asset", name)
		}
		raw.Assets = append(raw.Assets, processor.BytesAsset(name, content))
	}
	return raw, nil
}

func decodeMultipart(r *http.Request, maxMemory int64) (processor.RawJob, func(), error) {
	noop := func() {}
	if maxMemory > multipartMemory {
		maxMemory = multipartMemory
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
		return processor.RawJob{}, noop, bodyError(err)
	}
	form := r.MultipartForm
	release := func() { _ = form.RemoveAll() }

	raw := processor.RawJob{
		HTML:   formValue(form.Value, "html"),
		Width:  formValue(form.Value, "width"),
		Height: formValue(form.Value, "height"),
	}

	// every file part is an asset, keyed by its original filename; field
	// order is fixed so duplicate names resolve the same way every time
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		for _, fh := range form.File[field] {
			raw.Assets = append(raw.Assets, processor.FileHeaderAsset(fh))
		}
	}
	return raw, release, nil
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// jsonScalar renders a JSON number or string as text. Anything else is
// treated as absent.
func jsonScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		return str
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return ""
	}
	return s
}

func decodeBase64(s string) ([]byte, error) {
	// tolerate data URLs
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.WrapWithCode(err, apperrors.CodePayloadTooLarge, "handlers.decode", "request body too large")
	}
	return apperrors.WrapWithCode(err, apperrors.CodeBadRequest, "handlers.decode", "invalid request body")
}
