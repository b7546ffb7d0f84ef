package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/programmer4yugal/buildchain/pkg/api"
	"github.com/programmer4yugal/buildchain/pkg/auth"
	"github.com/programmer4yugal/buildchain/pkg/ledger"
	"github.com/programmer4yugal/buildchain/pkg/lifecycle"
)

// categoryRoles lists who may append directly to each category. Categories
// not listed are admin only; milestones are only created by approval.
var categoryRoles = map[ledger.Category]string{
	ledger.CategoryProjects:          auth.RoleAdmin,
	ledger.CategoryDefinedMilestones: auth.RoleAdmin,
	ledger.CategoryMaterials:         auth.RoleContractor,
	ledger.CategoryAttendance:        auth.RoleContractor,
	ledger.CategoryLaborRegistry:     auth.RoleContractor,
}

// TipResponse describes the head of the chain.
type TipResponse struct {
	Ledger      string        `json:"ledger"`
	GenesisHash string        `json:"genesisHash"`
	Block       *ledger.Block `json:"block"`
}

// AppendResponse is returned for a committed block. Warning is set when the
// category projection could not be written.
type AppendResponse struct {
	Block   *ledger.Block `json:"block"`
	Warning string        `json:"warning,omitempty"`
}

// SnapshotResponse summarises an exported bundle.
type SnapshotResponse struct {
	BundleID    string `json:"bundleId"`
	ContentHash string `json:"contentHash"`
	BlockCount  int    `json:"blockCount"`
	HeadHash    string `json:"headHash"`
	MerkleRoot  string `json:"merkleRoot"`
	IsValid     bool   `json:"isValid"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	tip, err := s.deps.Writer.Tip(r.Context())
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	cfg := s.deps.Writer.Config()
	api.WriteJSON(w, http.StatusOK, TipResponse{Ledger: cfg.LedgerName, GenesisHash: cfg.GenesisHash, Block: tip})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	v := s.deps.Verifier
	if strict, _ := strconv.ParseBool(r.URL.Query().Get("strict")); strict {
		v = s.deps.Strict
	}
	report, err := v.Verify(r.Context())
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, report)
}

// TimelineResponse is the merged, newest-first view of the canonical ledger.
type TimelineResponse struct {
	Ledger string          `json:"ledger"`
	Type   string          `json:"type,omitempty"`
	Blocks []*ledger.Block `json:"blocks"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		api.WriteBadRequest(w, r, err.Error())
		return
	}
	typ := r.URL.Query().Get("type")
	if typ == "all" {
		typ = ""
	}
	blocks, err := s.deps.Writer.Timeline(r.Context(), ledger.Category(typ), limit)
	if err != nil {
		if errors.Is(err, ledger.ErrValidation) {
			api.WriteBadRequest(w, r, err.Error())
			return
		}
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, TimelineResponse{Ledger: s.deps.Writer.Config().LedgerName, Type: typ, Blocks: blocks})
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	category := ledger.Category(chi.URLParam(r, "category"))
	limit, err := queryInt(r, "limit")
	if err != nil {
		api.WriteBadRequest(w, r, err.Error())
		return
	}
	blocks, err := s.deps.Writer.ListCategory(r.Context(), category, limit)
	if err != nil {
		if errors.Is(err, ledger.ErrValidation) {
			api.WriteBadRequest(w, r, err.Error())
			return
		}
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"category": category, "blocks": blocks})
}

func (s *Server) handleAppendBlock(w http.ResponseWriter, r *http.Request) {
	category := ledger.Category(chi.URLParam(r, "category"))
	if category == ledger.CategoryMilestones {
		api.WriteForbidden(w, r, "Milestones are recorded by approving a submission")
		return
	}
	if !category.Valid() {
		api.WriteBadRequest(w, r, "invalid category name")
		return
	}
	if !s.allowed(r, category) {
		api.WriteForbidden(w, r, "Not permitted to record "+string(category))
		return
	}

	fields, msgs, err := decodeValidated(http.MaxBytesReader(w, r.Body, maxBodyBytes), s.schemas.forCategory(category))
	if err != nil {
		if msgs != nil {
			api.WriteValidation(w, r, "Payload does not match the "+string(category)+" schema", msgs)
			return
		}
		api.WriteBadRequest(w, r, err.Error())
		return
	}
	if err := stampAuthor(r, fields, authorField(category)); err != nil {
		api.WriteValidation(w, r, "Payload rejected", []string{err.Error()})
		return
	}
	ledger.ApplyDefaults(category, fields, s.now())

	p, err := ledger.ParsePayload(category, fields)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	block, err := s.deps.Writer.Append(r.Context(), p)
	if block != nil {
		resp := AppendResponse{Block: block}
		if err != nil {
			resp.Warning = "block committed but the " + string(category) + " projection is behind; run reconcile"
		}
		api.WriteJSON(w, http.StatusCreated, resp)
		return
	}
	writeLedgerError(w, r, err)
}

func (s *Server) allowed(r *http.Request, category ledger.Category) bool {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		return false
	}
	role, ok := categoryRoles[category]
	if !ok {
		role = auth.RoleAdmin
	}
	return p.HasRole(role)
}

// authorField names the payload field recording who wrote a block.
func authorField(c ledger.Category) string {
	if c == ledger.CategoryLaborRegistry {
		return "registeredBy"
	}
	return "from"
}

// stampAuthor sets fields[key] to the caller. A body naming anyone else is
// rejected.
func stampAuthor(r *http.Request, fields map[string]any, key string) error {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		return err
	}
	if v, ok := fields[key]; ok && v != p.Subject {
		return fmt.Errorf("%s must be the authenticated caller %q", key, p.Subject)
	}
	fields[key] = p.Subject
	return nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	fields, msgs, err := decodeValidated(http.MaxBytesReader(w, r.Body, maxBodyBytes), s.schemas.schemas[submissionSchema])
	if err != nil {
		if msgs != nil {
			api.WriteValidation(w, r, "Submission does not match the schema", msgs)
			return
		}
		api.WriteBadRequest(w, r, err.Error())
		return
	}

	if err := stampAuthor(r, fields, "from"); err != nil {
		api.WriteValidation(w, r, "Submission rejected", []string{err.Error()})
		return
	}

	req := lifecycle.SubmitRequest{
		ProjectID:          str(fields, "projectId"),
		DefinedMilestoneID: str(fields, "definedMilestoneId"),
		Description:        str(fields, "description"),
		ProofHash:          str(fields, "proofHash"),
		From:               str(fields, "from"),
	}

	sub, err := s.deps.Lifecycle.Submit(r.Context(), req)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = ledger.StatusPending
	}
	subs, err := s.deps.Lifecycle.List(r.Context(), status)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"status": status, "submissions": subs})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, r, "")
		return
	}

	block, err := s.deps.Lifecycle.Approve(r.Context(), chi.URLParam(r, "id"), p.Subject)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		api.WriteNotFound(w, r, "Submission not found")
	case errors.Is(err, lifecycle.ErrAlreadyApproved):
		api.WriteConflict(w, r, "Submission already approved")
	case block != nil:
		resp := AppendResponse{Block: block}
		if err != nil {
			s.logger.WarnContext(r.Context(), "approval committed with follow-up failure", "error", err)
			resp.Warning = "block committed; follow-up write failed, run reconcile"
		}
		api.WriteJSON(w, http.StatusOK, resp)
	default:
		writeLedgerError(w, r, err)
	}
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dryRun"))
	report, err := s.deps.Reconciler.Reconcile(r.Context(), dryRun)
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		api.WriteError(w, r, http.StatusNotImplemented, "Snapshot storage is not configured")
		return
	}
	bundle, hash, err := s.deps.Exporter.Export(r.Context())
	if err != nil {
		api.WriteInternal(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, SnapshotResponse{
		BundleID:    bundle.BundleID,
		ContentHash: hash,
		BlockCount:  bundle.BlockCount,
		HeadHash:    bundle.HeadHash,
		MerkleRoot:  bundle.MerkleRoot,
		IsValid:     bundle.Report.IsValid,
	})
}

func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrReservedField):
		api.WriteValidation(w, r, "Payload rejected", []string{err.Error()})
	case errors.Is(err, ledger.ErrConcurrentAppend):
		w.Header().Set("Retry-After", "1")
		api.WriteConflict(w, r, "Another block was appended concurrently; retry")
	default:
		api.WriteInternal(w, r, err)
	}
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
