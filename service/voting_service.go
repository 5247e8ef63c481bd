package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"election-ledger/admin"
	"election-ledger/anonymizer"
	"election-ledger/blockchain/journal"
	"election-ledger/config"
	"election-ledger/election"
	"election-ledger/encryption"
	"election-ledger/models"
	"election-ledger/proof"
	"election-ledger/registry"
	"election-ledger/storage"
)

// ErrNotPersisted reports a transaction that was applied in memory but could
// not be written to disk. It is lost if the process stops before the next
// successful write.
var ErrNotPersisted = errors.New("transaction applied but not persisted")

// Options configure a VotingService.
type Options struct {
	StorageDir    string
	AdminKeyFile  string
	AdminAddress  string // overrides the key file when set
	SessionTTL    time.Duration
	ChallengeTTL  time.Duration
	MaxChallenges int
	MaxSessions   int
	BlockSize     int
	Difficulty    uint8
	SnapshotKeep  int
	QueueSize     int
	Clock         func() time.Time
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StorageDir:    cfg.StorageDir,
		AdminKeyFile:  cfg.AdminKeyFile,
		AdminAddress:  cfg.AdminAddress,
		SessionTTL:    cfg.SessionTTL,
		ChallengeTTL:  cfg.ChallengeTTL,
		MaxChallenges: cfg.MaxChallenges,
		MaxSessions:   cfg.MaxSessions,
		BlockSize:     cfg.Journal.BlockSize,
		Difficulty:    cfg.Journal.Difficulty,
		SnapshotKeep:  cfg.Snapshot.Keep,
		QueueSize:     cfg.Queue.Size,
	}
}

// VotingService is the ledger substrate. It owns every component, applies
// mutations one at a time through the transaction queue, journals their
// events and persists snapshots.
type VotingService struct {
	cryptoService       *encryption.CryptoService
	authority           *admin.Authority
	registry            *registry.VoterRegistry
	election            *election.Election
	issuer              *proof.Issuer
	sessions            *proof.SessionStore
	journal             *journal.Journal
	snapshots           *storage.SnapshotStorage
	queue               *TxQueue
	metricsCollector    *MetricsCollector
	verificationService *VoterVerificationService
	countingService     *VoteCountingService
	logger              *zap.Logger
	now                 func() time.Time

	// mu keeps registry and election mutually consistent for snapshots and
	// serializes reads that may lazily finalize the election.
	mu sync.Mutex
}

type JournalResponse struct {
	BlockCount int             `json:"block_count"`
	Blocks     []*models.Block `json:"blocks"`
	Pending    []models.Event  `json:"pending"`
	IsValid    bool            `json:"is_valid"`
	LastHash   string          `json:"last_hash"`
}

func resolveAdmin(opts Options) (common.Address, error) {
	if opts.AdminAddress != "" {
		if !common.IsHexAddress(opts.AdminAddress) {
			return common.Address{}, fmt.Errorf("invalid admin address %q", opts.AdminAddress)
		}
		return common.HexToAddress(opts.AdminAddress), nil
	}

	key, err := encryption.LoadOrGenerateKey(opts.AdminKeyFile)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func NewVotingService(opts Options, logger *zap.Logger) (*VotingService, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	adminAddr, err := resolveAdmin(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to setup admin: %w", err)
	}

	blockStore, err := storage.NewJSONStore(filepath.Join(opts.StorageDir, "journal"))
	if err != nil {
		return nil, err
	}
	snapshots, err := storage.NewSnapshotStorage(filepath.Join(opts.StorageDir, "snapshots"), opts.SnapshotKeep, logger.Named("snapshots"))
	if err != nil {
		return nil, err
	}
	ledgerJournal, err := journal.New(blockStore, opts.BlockSize, opts.Difficulty, logger.Named("journal"))
	if err != nil {
		return nil, err
	}

	cryptoService := encryption.NewCryptoService()
	metrics := NewMetricsCollector()

	vs := &VotingService{
		cryptoService:       cryptoService,
		authority:           admin.New(adminAddr),
		issuer:              proof.NewIssuer(proof.NewVerifier(cryptoService), opts.MaxChallenges, opts.ChallengeTTL),
		sessions:            proof.NewSessionStore(opts.MaxSessions, opts.SessionTTL),
		journal:             ledgerJournal,
		snapshots:           snapshots,
		queue:               NewTxQueue(opts.QueueSize, metrics, logger.Named("queue")),
		metricsCollector:    metrics,
		verificationService: NewVoterVerificationService(cryptoService),
		logger:              logger,
		now:                 opts.Clock,
	}

	// The election is the only caller the registry lets consume a vote.
	handle := crypto.CreateAddress(adminAddr, 0)
	vs.registry = registry.New(handle, vs)
	vs.election = election.New(handle, vs.authority, vs.registry,
		election.WithClock(opts.Clock),
		election.WithNotifier(vs))
	vs.countingService = NewVoteCountingService(vs.election, vs.registry)

	if err := vs.restore(); err != nil {
		return nil, err
	}

	vs.queue.Start()
	logger.Info("voting service ready",
		anonymizer.Identity(adminAddr),
		zap.String("election", handle.Hex()),
		zap.Uint64("journal_height", ledgerJournal.Height()))
	return vs, nil
}

func (vs *VotingService) restore() error {
	snapshot, err := vs.snapshots.LoadLatest()
	if errors.Is(err, storage.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if snapshot.ElectionAddress != vs.election.Address() {
		return fmt.Errorf("snapshot belongs to election %s, not %s",
			snapshot.ElectionAddress.Hex(), vs.election.Address().Hex())
	}
	if err := vs.registry.Restore(snapshot.Voters); err != nil {
		return fmt.Errorf("failed to restore registry: %w", err)
	}
	if err := vs.election.Restore(snapshot.Election); err != nil {
		return err
	}

	// Pending events only line up with the journal if no block was sealed or
	// lost since the snapshot was written.
	height := vs.journal.Height()
	switch {
	case snapshot.JournalHeight == height:
		if err := vs.journal.RestorePending(snapshot.Pending); err != nil {
			return fmt.Errorf("failed to restore pending journal events: %w", err)
		}
	case snapshot.JournalHeight < height:
		vs.logger.Warn("journal holds blocks sealed after the latest snapshot; their transactions were never acknowledged",
			zap.Uint64("snapshot_height", snapshot.JournalHeight),
			zap.Uint64("journal_height", height),
			zap.Int("dropped_pending", len(snapshot.Pending)))
	default:
		vs.logger.Warn("snapshot is ahead of the journal",
			zap.Uint64("snapshot_height", snapshot.JournalHeight),
			zap.Uint64("journal_height", height),
			zap.Int("dropped_pending", len(snapshot.Pending)))
	}
	return nil
}

// Notify receives every committed event from the registry and the election.
func (vs *VotingService) Notify(event models.Event) {
	fields := []zap.Field{zap.String("event", string(event.Type))}
	if event.Identity != "" {
		fields = append(fields, zap.String("identity", anonymizer.MaskHex(event.Identity)))
	}

	switch event.Type {
	case models.EventVotingStarted:
		vs.metricsCollector.StartVotingPhase(time.Unix(event.Timestamp, 0))
		fields = append(fields, zap.Int64("start_time", event.StartTime), zap.Int64("end_time", event.EndTime))
	case models.EventElectionEnded:
		vs.metricsCollector.EndVotingPhase(time.Unix(event.Timestamp, 0))
		fields = append(fields, zap.Uint64s("winners", event.Winners), zap.Bool("automatic", event.Automatic))
	case models.EventVoteCast:
		fields = append(fields, zap.Uint64("candidate_id", event.CandidateID))
	case models.EventCandidateAdded:
		fields = append(fields, zap.Uint64("candidate_id", event.CandidateID), zap.String("name", event.Name))
	}
	vs.logger.Info("ledger event", fields...)

	vs.journal.Notify(event)
}

// submit runs apply as one transaction under the service lock. A successful
// transaction is persisted before its receipt is returned.
func (vs *VotingService) submit(ctx context.Context, operation string, apply func() error) (Receipt, error) {
	return vs.queue.Submit(ctx, operation, func() error {
		vs.mu.Lock()
		defer vs.mu.Unlock()

		before := vs.mark()
		err := apply()
		return vs.commit(operation, err == nil || vs.mark() != before, err)
	})
}

// read runs fn under the service lock and records it as an operation. Reads
// that lazily finalized the election are persisted like transactions.
func (vs *VotingService) read(operation string, fn func() error) error {
	startTime := time.Now()
	vs.mu.Lock()
	before := vs.mark()
	err := fn()
	err = vs.commit(operation, vs.mark() != before, err)
	vs.mu.Unlock()
	vs.metricsCollector.RecordOperation(operation, time.Since(startTime), err)
	return err
}

// journalMark identifies how far the journal has advanced.
type journalMark struct {
	height  uint64
	pending int
}

func (vs *VotingService) mark() journalMark {
	return journalMark{height: vs.journal.Height(), pending: vs.journal.PendingCount()}
}

// commit persists the ledger when changed is set. An operation that failed
// keeps its own error even if persisting fails too. Callers must hold vs.mu.
func (vs *VotingService) commit(operation string, changed bool, err error) error {
	if !changed {
		return err
	}
	if _, perr := vs.persist(); perr != nil {
		vs.logger.Error("committed state was not persisted",
			zap.String("operation", operation), zap.Error(perr))
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNotPersisted, perr)
	}
	return err
}

// persist writes the registry, the election and the unsealed journal events.
// Callers must hold vs.mu.
func (vs *VotingService) persist() (string, error) {
	snapshot := &models.LedgerSnapshot{
		Version:         models.SnapshotVersion,
		TakenAt:         vs.now().Unix(),
		ElectionAddress: vs.election.Address(),
		Election:        vs.election.Snapshot(),
		Voters:          vs.registry.Snapshot(),
		JournalHeight:   vs.journal.Height(),
		Pending:         vs.journal.Pending(),
	}
	return vs.snapshots.Save(snapshot)
}

func (vs *VotingService) Admin() common.Address {
	return vs.authority.Admin()
}

func (vs *VotingService) ElectionAddress() common.Address {
	return vs.election.Address()
}

// Possession proof

func (vs *VotingService) IssueChallenge() (*proof.Challenge, error) {
	return vs.issuer.Issue()
}

// ProveIdentity redeems a challenge signed by claimed and opens a session for it.
func (vs *VotingService) ProveIdentity(claimed common.Address, nonce, signature []byte) (proof.Session, error) {
	startTime := time.Now()
	err := vs.issuer.Redeem(claimed, nonce, signature)
	vs.metricsCollector.RecordOperation("prove_identity", time.Since(startTime), err)
	if err != nil {
		vs.logger.Info("possession proof rejected", anonymizer.Identity(claimed), zap.Error(err))
		return proof.Session{}, err
	}

	session := vs.sessions.Open(claimed)
	vs.logger.Info("possession proof accepted", anonymizer.Identity(claimed))
	return session, nil
}

func (vs *VotingService) Session(token string) (proof.Session, error) {
	return vs.sessions.Lookup(token)
}

func (vs *VotingService) Logout(token string) {
	vs.sessions.Close(token)
}

// Registry

// Commitment derives the registration commitment for a national id number.
func (vs *VotingService) Commitment(nin string) (common.Hash, error) {
	return vs.verificationService.Commitment(nin)
}

func (vs *VotingService) SelfRegister(ctx context.Context, identity common.Address, commitment common.Hash) (Receipt, error) {
	return vs.submit(ctx, "self_register", func() error {
		return vs.registry.SelfRegister(identity, commitment)
	})
}

func (vs *VotingService) VoterStatus(identity common.Address) models.VoterStatus {
	return models.VoterStatus{
		Identity:   identity,
		Registered: vs.registry.IsRegistered(identity),
		HasVoted:   vs.registry.HasVoted(identity),
	}
}

// Election mutations

func (vs *VotingService) AddCandidate(ctx context.Context, caller common.Address, name string) (models.Candidate, Receipt, error) {
	var candidate models.Candidate
	receipt, err := vs.submit(ctx, "add_candidate", func() error {
		var err error
		candidate, err = vs.election.AddCandidate(caller, name)
		return err
	})
	return candidate, receipt, err
}

func (vs *VotingService) ResetCandidatesForNewElection(ctx context.Context, caller common.Address) (Receipt, error) {
	return vs.submit(ctx, "reset_candidates", func() error {
		return vs.election.ResetCandidatesForNewElection(caller)
	})
}

func (vs *VotingService) StartVoting(ctx context.Context, caller common.Address, start, end int64) (Receipt, error) {
	return vs.submit(ctx, "start_voting", func() error {
		return vs.election.StartVoting(caller, start, end)
	})
}

func (vs *VotingService) SetDetails(ctx context.Context, caller common.Address, title, description string) (Receipt, error) {
	return vs.submit(ctx, "set_details", func() error {
		return vs.election.SetDetails(caller, title, description)
	})
}

func (vs *VotingService) CastVote(ctx context.Context, voter common.Address, candidateID uint64) (Receipt, error) {
	return vs.submit(ctx, "vote", func() error {
		return vs.election.Vote(voter, candidateID)
	})
}

func (vs *VotingService) EndVoting(ctx context.Context, caller common.Address) (Receipt, error) {
	return vs.submit(ctx, "end_voting", func() error {
		return vs.election.EndVoting(caller)
	})
}

// AutoEndElection reports whether this call closed the election.
func (vs *VotingService) AutoEndElection(ctx context.Context) (bool, Receipt, error) {
	var ended bool
	receipt, err := vs.submit(ctx, "auto_end_election", func() error {
		ended = vs.election.AutoEndElection()
		return nil
	})
	return ended, receipt, err
}

// Election reads

func (vs *VotingService) Winners() (models.Winners, error) {
	var winners models.Winners
	err := vs.read("get_winners", func() error {
		var err error
		winners, err = vs.election.GetWinners()
		return err
	})
	return winners, err
}

func (vs *VotingService) Candidates() []models.Candidate {
	var candidates []models.Candidate
	_ = vs.read("get_all_candidates", func() error {
		candidates = vs.election.GetAllCandidates()
		return nil
	})
	return candidates
}

func (vs *VotingService) Candidate(id uint64) (models.Candidate, error) {
	var candidate models.Candidate
	err := vs.read("get_candidate", func() error {
		var err error
		candidate, err = vs.election.GetCandidate(id)
		return err
	})
	return candidate, err
}

func (vs *VotingService) ElectionInfo() models.ElectionInfo {
	var info models.ElectionInfo
	_ = vs.read("election_info", func() error {
		info = vs.election.Info()
		return nil
	})
	return info
}

func (vs *VotingService) Results() (*VotingResults, error) {
	var results *VotingResults
	err := vs.read("results", func() error {
		var err error
		results, err = vs.countingService.CountVotes()
		return err
	})
	return results, err
}

// Journal, metrics and persistence

func (vs *VotingService) Journal() JournalResponse {
	blocks := vs.journal.Blocks()
	response := JournalResponse{
		BlockCount: len(blocks),
		Blocks:     blocks,
		Pending:    vs.journal.Pending(),
		IsValid:    models.ValidateChain(blocks) == nil,
	}
	if len(blocks) > 0 {
		response.LastHash = hexutil.Encode(blocks[len(blocks)-1].Hash)
	}
	return response
}

func (vs *VotingService) ValidateJournal() error {
	return vs.journal.Validate()
}

func (vs *VotingService) Metrics() MetricsResponse {
	response := vs.metricsCollector.GetMetrics()

	snapshots, err := vs.snapshots.Count()
	if err != nil {
		vs.logger.Warn("failed to count snapshots", zap.Error(err))
	}
	response.Ledger = &LedgerMetrics{
		ActiveSessions:        vs.sessions.Active(),
		OutstandingChallenges: vs.issuer.Outstanding(),
		Snapshots:             snapshots,
		JournalHeight:         vs.journal.Height(),
		JournalEvents:         len(vs.journal.Events()),
		PendingEvents:         vs.journal.PendingCount(),
	}
	return response
}

// Snapshot seals pending journal events and writes a consistent image of the
// registry and the election.
func (vs *VotingService) Snapshot() (string, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if err := vs.journal.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush journal: %w", err)
	}

	path, err := vs.persist()
	if err != nil {
		return "", err
	}
	vs.logger.Info("ledger snapshot written", zap.String("file", path), zap.Uint64("journal_height", vs.journal.Height()))
	return path, nil
}

// Close drains the queue and takes a final snapshot.
func (vs *VotingService) Close() error {
	vs.queue.Stop()
	if _, err := vs.Snapshot(); err != nil {
		return err
	}
	vs.logger.Info("voting service stopped")
	return nil
}
