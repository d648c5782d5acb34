package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/agentstation/blockquote/internal/server/cache"
	"github.com/agentstation/blockquote/internal/server/events"
	"github.com/agentstation/blockquote/internal/server/response"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/records"
)

// maxBodyBytes bounds request bodies of write endpoints.
const maxBodyBytes = 1 << 20

// HandleListRecords handles GET /api/v1/records?limit=&offset=.
func (h *Handlers) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	page = page.Normalize()

	key := cache.ListKey(page)
	if cached, found := h.Cache.Get(key); found {
		response.OK(w, cached)
		return
	}

	client, err := h.App.Client()
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	recs, total, err := client.List(r.Context(), page)
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to list records")
		response.ErrorFromType(w, err)
		return
	}

	result := response.Page{
		Items:  recs,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	h.Cache.Set(key, result)
	response.OK(w, result)
}

// HandleGetRecord handles GET /api/v1/records/{id}.
func (h *Handlers) HandleGetRecord(w http.ResponseWriter, r *http.Request, id string) {
	key := cache.RecordKey(id)
	if cached, found := h.Cache.Get(key); found {
		response.OK(w, cached)
		return
	}

	client, err := h.App.Client()
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	rec, err := client.Get(r.Context(), id)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	h.Cache.Set(key, rec)
	response.OK(w, rec)
}

// HandleUpsertRecord handles PUT /api/v1/records/{id}. The body is a
// record; an id in the body must match the path.
func (h *Handlers) HandleUpsertRecord(w http.ResponseWriter, r *http.Request, id string) {
	var rec records.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
		response.BadRequest(w, "Invalid request body", err.Error())
		return
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		response.BadRequest(w, "Record id does not match path", rec.ID+" != "+id)
		return
	}

	client, err := h.App.Client()
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	if err := client.Upsert(r.Context(), rec); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	h.Cache.InvalidateRecord(id)
	h.Broker.Publish(events.RecordUpserted, map[string]any{"record": rec})
	response.OK(w, rec)
}

type trackRequest struct {
	PostID string `json:"post_id"`
}

// HandleTrackRecord handles POST /api/v1/records/track. It fetches the
// post thread from the source and stores it as a new record.
func (h *Handlers) HandleTrackRecord(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", err.Error())
		return
	}
	if req.PostID == "" {
		response.BadRequest(w, "post_id is required", "")
		return
	}

	client, err := h.App.Client()
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	rec, err := client.Track(r.Context(), req.PostID)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	h.Cache.InvalidateRecord(rec.ID)
	h.Broker.Publish(events.RecordUpserted, map[string]any{"record": rec})
	response.Created(w, rec)
}

func parsePage(r *http.Request) (records.Page, error) {
	var page records.Page
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &page.Limit},
		{"offset", &page.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, errors.NewValidationError(p.name, raw, "must be a non-negative integer")
		}
		*p.dst = n
	}
	return page, nil
}
