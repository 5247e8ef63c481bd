package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"election-ledger/models"
	"election-ledger/proof"
	"election-ledger/scheduler"
	"election-ledger/service"
)

const SessionHeader = "X-Session-Token"

type Server struct {
	service     *service.VotingService
	snapshotJob *scheduler.SnapshotScheduler
	logger      *zap.Logger
	httpServer  *http.Server
}

type ChallengeResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

type ProofRequest struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

type RegisterRequest struct {
	Commitment string `json:"commitment"`
}

type CandidateRequest struct {
	Name string `json:"name"`
}

type StartVotingRequest struct {
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`
}

type DetailsRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type VoteRequest struct {
	CandidateID uint64 `json:"candidate_id"`
}

type ReceiptResponse struct {
	Receipt service.Receipt `json:"receipt"`
}

type CandidateResponse struct {
	Candidate models.Candidate `json:"candidate"`
	Receipt   service.Receipt  `json:"receipt"`
}

type AutoEndResponse struct {
	Ended   bool            `json:"ended"`
	Receipt service.Receipt `json:"receipt"`
}

type CandidatesResponse struct {
	Candidates []models.Candidate `json:"candidates"`
	Count      int                `json:"total_candidates"`
}

// MetricsPayload adds the snapshot job's history to the service metrics.
type MetricsPayload struct {
	service.MetricsResponse
	SnapshotJob *scheduler.SnapshotStats `json:"snapshot_job,omitempty"`
}

type ValidationResponse struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

func NewServer(vs *service.VotingService, logger *zap.Logger, port int) *Server {
	s := &Server{service: vs, logger: logger}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// WithSnapshotScheduler reports job's run history under /api/metrics.
func (s *Server) WithSnapshotScheduler(job *scheduler.SnapshotScheduler) *Server {
	s.snapshotJob = job
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Possession proof
	mux.HandleFunc("POST /api/challenge", s.withLogging(s.handleChallenge))
	mux.HandleFunc("POST /api/proof", s.withLogging(s.handleProof))
	mux.HandleFunc("POST /api/logout", s.withLogging(s.handleLogout))

	// Registry
	mux.HandleFunc("POST /api/register", s.withLogging(s.handleRegister))
	mux.HandleFunc("GET /api/voters/{address}", s.withLogging(s.handleVoterStatus))

	// Admin operations
	mux.HandleFunc("POST /api/admin/candidates", s.withLogging(s.handleAddCandidate))
	mux.HandleFunc("POST /api/admin/reset", s.withLogging(s.handleReset))
	mux.HandleFunc("POST /api/admin/start", s.withLogging(s.handleStartVoting))
	mux.HandleFunc("POST /api/admin/end", s.withLogging(s.handleEndVoting))
	mux.HandleFunc("POST /api/admin/details", s.withLogging(s.handleSetDetails))

	// Voting
	mux.HandleFunc("POST /api/vote", s.withLogging(s.handleVote))
	mux.HandleFunc("POST /api/auto-end", s.withLogging(s.handleAutoEnd))

	// Reads
	mux.HandleFunc("GET /api/winners", s.withLogging(s.handleWinners))
	mux.HandleFunc("GET /api/candidates", s.withLogging(s.handleCandidates))
	mux.HandleFunc("GET /api/candidates/{id}", s.withLogging(s.handleCandidate))
	mux.HandleFunc("GET /api/election", s.withLogging(s.handleElection))
	mux.HandleFunc("GET /api/results", s.withLogging(s.handleResults))
	mux.HandleFunc("GET /api/journal", s.withLogging(s.handleJournal))
	mux.HandleFunc("GET /api/journal/validate", s.withLogging(s.handleValidateJournal))
	mux.HandleFunc("GET /api/metrics", s.withLogging(s.handleMetrics))

	return mux
}

func (s *Server) Start() error {
	s.logger.Info("starting election ledger API", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// caller resolves the identity bound to the request's session token.
func (s *Server) caller(r *http.Request) (common.Address, error) {
	token := r.Header.Get(SessionHeader)
	if token == "" {
		return common.Address{}, proof.ErrSessionNotFound
	}
	session, err := s.service.Session(token)
	if err != nil {
		return common.Address{}, err
	}
	return session.Identity, nil
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := s.service.IssueChallenge()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ChallengeResponse{
		Nonce:   hexutil.Encode(challenge.Nonce),
		Message: challenge.Message,
	})
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	var req ProofRequest
	if err := parseJSONBody(r, &req); err != nil {
		s.badRequest(w, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Address) {
		s.badRequest(w, "address must be a hex address")
		return
	}
	nonce, err := hexutil.Decode(req.Nonce)
	if err != nil {
		s.badRequest(w, "nonce must be 0x-prefixed hex")
		return
	}
	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		s.badRequest(w, "signature must be 0x-prefixed hex")
		return
	}

	session, err := s.service.ProveIdentity(common.HexToAddress(req.Address), nonce, signature)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := r.Header.Get(SessionHeader); token != "" {
		s.service.Logout(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	identity, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req RegisterRequest
	if err := parseJSONBody(r, &req); err != nil {
		s.badRequest(w, "Invalid request body")
		return
	}
	commitment, err := hexutil.Decode(req.Commitment)
	if err != nil || len(commitment) != common.HashLength {
		s.badRequest(w, "commitment must be a 0x-prefixed 32-byte hash")
		return
	}

	receipt, err := s.service.SelfRegister(r.Context(), identity, common.BytesToHash(commitment))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ReceiptResponse{Receipt: receipt})
}

func (s *Server) handleVoterStatus(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !common.IsHexAddress(address) {
		s.badRequest(w, "address must be a hex address")
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.VoterStatus(common.HexToAddress(address)))
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req CandidateRequest
	if err := parseJSONBody(r, &req); err != nil {
		s.badRequest(w, "Invalid request body")
		return
	}

	candidate, receipt, err := s.service.AddCandidate(r.Context(), caller, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, CandidateResponse{Candidate: candidate, Receipt: receipt})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	receipt, err := s.service.ResetCandidatesForNewElection(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ReceiptResponse{Receipt: receipt})
}

func (s *Server) handleStartVoting(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req StartVotingRequest
	if err := parseJSONBody(r, &req); err != nil {
		s.badRequest(w, "Invalid request body")
		return
	}

	receipt, err := s.service.StartVoting(r.Context(), caller, req.StartTime, req.EndTime)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ReceiptResponse{Receipt: receipt})
}

func (s *Server) handleEndVoting(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	receipt, err := s.service.EndVoting(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ReceiptResponse{Receipt: receipt})
}

func (s *Server) handleSetDetails(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req DetailsRequest
	if err := parseJSONBody(r, &req); err != nil {
		s.badRequest(w, "Invalid request body")
		return
	}

	receipt, err := s.service.SetDetails(r.Context(), caller, req.Title, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ReceiptResponse{Receipt: receipt})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	voter, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req VoteRequest
	if err := parseJSONBody(r, &req); err != nil {
		s.badRequest(w, "Invalid request body")
		return
	}

	receipt, err := s.service.CastVote(r.Context(), voter, req.CandidateID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ReceiptResponse{Receipt: receipt})
}

func (s *Server) handleAutoEnd(w http.ResponseWriter, r *http.Request) {
	ended, receipt, err := s.service.AutoEndElection(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AutoEndResponse{Ended: ended, Receipt: receipt})
}

func (s *Server) handleWinners(w http.ResponseWriter, r *http.Request) {
	winners, err := s.service.Winners()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, winners)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	candidates := s.service.Candidates()
	s.writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: candidates, Count: len(candidates)})
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.badRequest(w, "candidate id must be a positive integer")
		return
	}

	candidate, err := s.service.Candidate(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, candidate)
}

func (s *Server) handleElection(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.ElectionInfo())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.Results()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Journal())
}

func (s *Server) handleValidateJournal(w http.ResponseWriter, r *http.Request) {
	response := ValidationResponse{IsValid: true}
	if err := s.service.ValidateJournal(); err != nil {
		s.logger.Warn("journal validation failed", zap.Error(err))
		response = ValidationResponse{IsValid: false, Error: err.Error()}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := MetricsPayload{MetricsResponse: s.service.Metrics()}
	if s.snapshotJob != nil {
		stats := s.snapshotJob.Stats()
		payload.SnapshotJob = &stats
	}
	s.writeJSON(w, http.StatusOK, payload)
}
