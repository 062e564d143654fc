package handlers

import (
	"net/http"

	"htmlpng/internal/httpkit"
	"htmlpng/internal/processor"
)

// RenderIDHeader carries the server-side render ID on successful responses.
const RenderIDHeader = "X-Render-ID"

// RenderHTMLToPNG handles POST /api/render-html-to-png. By the time a
// response is written every staged asset of the request has been released.
func (h *Handler) RenderHTMLToPNG(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	raw, release, err := decodeRenderRequest(r, h.maxBodyBytes)
	defer release()
	if err != nil {
		return err
	}

	res, err := h.renderer.Process(r.Context(), raw)
	if err != nil {
		return err
	}

	w.Header().Set(RenderIDHeader, res.RenderID)
	if err := httpkit.WritePNG(w, res.PNG); err != nil {
		h.log.FromContext(r.Context()).Debug("png response not delivered",
			"render_id", res.RenderID,
			"error", err.Error(),
		)
		return nil
	}

	h.log.FromContext(r.Context()).Debug("pipeline state",
		"state", string(processor.StateResponded),
		"render_id", res.RenderID,
		"bytes", len(res.PNG),
	)
	return nil
}
