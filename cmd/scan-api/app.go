package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/orbitguard/orbitguard/internal/broker/messages"
	"github.com/orbitguard/orbitguard/internal/models"
	"github.com/orbitguard/orbitguard/internal/services/scans"
	"github.com/orbitguard/orbitguard/internal/storage/pgscan"
	"github.com/orbitguard/orbitguard/internal/timeutil"
	"github.com/pkg/errors"
)

type scanAPIOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runScanAPI(ctx context.Context, opts scanAPIOpts, svc *scans.Service, consumer kafkaConsumer) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.AlertRaised
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			return svc.ApplyKafkaAlert(ctx, m)
		})
	}()

	srv := &http.Server{Handler: newRouter(svc)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func newRouter(svc *scans.Service) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/scans", handleCreateScan(svc))
	r.Get("/scans/{id}", handleGetScan(svc))
	r.Get("/scans/{id}/summary", handleScanSummary(svc))

	r.Get("/risks", handleListRisks(svc))
	r.Get("/risks/{id}/explain", handleExplainRisk(svc))

	r.Get("/alerts", handleListAlerts(svc))
	r.Post("/alerts/{id}/ack", handleAlertTransition(svc.AckAlert))
	r.Post("/alerts/{id}/resolve", handleAlertTransition(svc.ResolveAlert))

	r.Post("/objects", handleIngestObjects(svc))

	return r
}

// Request timestamps accept unix seconds, digit strings and ISO-8601;
// decode as raw numbers/strings and normalize via timeutil.
type createScanRequest struct {
	StartTs     any     `json:"startTs"`
	EndTs       any     `json:"endTs"`
	ThresholdKm float64 `json:"thresholdKm"`
}

type scanJobResponse struct {
	ID          uint64  `json:"id"`
	StartTs     int64   `json:"startTs"`
	EndTs       int64   `json:"endTs"`
	ThresholdKm float64 `json:"thresholdKm"`
	Status      string  `json:"status"`
	Attempts    int32   `json:"attempts"`
	MaxAttempts int32   `json:"maxAttempts"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func toScanJobResponse(j *models.ScanJob) scanJobResponse {
	return scanJobResponse{
		ID:          j.ID,
		StartTs:     j.StartTS,
		EndTs:       j.EndTS,
		ThresholdKm: j.ThresholdKM,
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func handleCreateScan(svc *scans.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createScanRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		startTS, err := timeutil.ToUnixSeconds(req.StartTs)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "startTs"))
			return
		}
		endTS, err := timeutil.ToUnixSeconds(req.EndTs)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "endTs"))
			return
		}

		job, err := svc.CreateScan(r.Context(), startTS, endTS, req.ThresholdKm)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, toScanJobResponse(job))
	}
}

func handleGetScan(svc *scans.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		job, err := svc.GetScan(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toScanJobResponse(job))
	}
}

func handleScanSummary(svc *scans.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sum, err := svc.Summary(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

type riskEventResponse struct {
	ID            uint64          `json:"id"`
	JobID         uint64          `json:"jobId"`
	ObjectID      string          `json:"objectId"`
	MinDistanceKm float64         `json:"minDistanceKm"`
	TcaTs         int64           `json:"tcaTs"`
	RiskScore     float64         `json:"riskScore"`
	Explanation   json.RawMessage `json:"explanation"`
	CreatedAt     string          `json:"createdAt"`
}

func handleListRisks(svc *scans.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var jobID uint64
		if s := r.URL.Query().Get("job_id"); s != "" {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, errors.New("job_id must be an integer"))
				return
			}
			jobID = v
		}
		limit, offset := pagination(r, 100)

		events, err := svc.ListRisks(r.Context(), jobID, limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]riskEventResponse, 0, len(events))
		for _, ev := range events {
			out = append(out, riskEventResponse{
				ID:            ev.ID,
				JobID:         ev.JobID,
				ObjectID:      ev.ObjectID,
				MinDistanceKm: ev.MinDistanceKM,
				TcaTs:         ev.TCATS,
				RiskScore:     ev.RiskScore,
				Explanation:   json.RawMessage(ev.Explanation),
				CreatedAt:     ev.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"risks": out})
	}
}

func handleExplainRisk(svc *scans.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		raw, err := svc.ExplainRisk(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		// Stored bytes go out untouched.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

type alertResponse struct {
	ID            uint64  `json:"id"`
	ObjectID      string  `json:"objectId"`
	TcaTs         int64   `json:"tcaTs"`
	MinDistanceKm float64 `json:"minDistanceKm"`
	RiskScore     float64 `json:"riskScore"`
	Status        string  `json:"status"`
	DedupeKey     string  `json:"dedupeKey"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

func handleListAlerts(svc *scans.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := models.AlertStatus(r.URL.Query().Get("status"))
		limit, offset := pagination(r, 100)

		alerts, err := svc.ListAlerts(r.Context(), status, limit, offset)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		out := make([]alertResponse, 0, len(alerts))
		for _, a := range alerts {
			out = append(out, alertResponse{
				ID:            a.ID,
				ObjectID:      a.ObjectID,
				TcaTs:         a.TCATS,
				MinDistanceKm: a.MinDistanceKM,
				RiskScore:     a.RiskScore,
				Status:        string(a.Status),
				DedupeKey:     a.DedupeKey,
				CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
				UpdatedAt:     a.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
	}
}

func handleAlertTransition(fn func(ctx context.Context, id uint64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := fn(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

type ingestObjectItem struct {
	ObjectID string  `json:"objectId"`
	Name     *string `json:"name,omitempty"`
	Epoch    any     `json:"epoch"`
	XKm      float64 `json:"xKm"`
	YKm      float64 `json:"yKm"`
	ZKm      float64 `json:"zKm"`
	VxKms    float64 `json:"vxKms"`
	VyKms    float64 `json:"vyKms"`
	VzKms    float64 `json:"vzKms"`
}

type ingestObjectsRequest struct {
	Objects []ingestObjectItem `json:"objects"`
}

func handleIngestObjects(svc *scans.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestObjectsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		items := make([]models.TrackedObjectInput, 0, len(req.Objects))
		for i, o := range req.Objects {
			epochTS, err := timeutil.ToUnixSeconds(o.Epoch)
			if err != nil {
				writeError(w, http.StatusBadRequest, errors.Wrapf(err, "objects[%d].epoch", i))
				return
			}
			items = append(items, models.TrackedObjectInput{
				ObjectID: o.ObjectID,
				Name:     o.Name,
				EpochTS:  epochTS,
				XKM:      o.XKm,
				YKM:      o.YKm,
				ZKM:      o.ZKm,
				VXKMS:    o.VxKms,
				VYKMS:    o.VyKms,
				VZKMS:    o.VzKms,
			})
		}

		n, err := svc.IngestObjects(r.Context(), items)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"written": n})
	}
}

func decodeJSON(r *http.Request, v any) error {
	d := json.NewDecoder(r.Body)
	d.UseNumber()
	if err := d.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func pagination(r *http.Request, defLimit int) (limit, offset int) {
	limit = defLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, pgscan.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
