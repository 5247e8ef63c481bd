package service

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"election-ledger/encryption"
)

var ErrInvalidNIN = errors.New("national identification number must be exactly 11 digits")

var ninPattern = regexp.MustCompile(`^\d{11}$`)

// VoterVerificationService turns a national identification number into the
// commitment a voter registers with. The format check is a convenience for
// clients; the registry accepts any commitment.
type VoterVerificationService struct {
	cryptoService *encryption.CryptoService
}

func NewVoterVerificationService(cryptoService *encryption.CryptoService) *VoterVerificationService {
	return &VoterVerificationService{cryptoService: cryptoService}
}

// VerifyNIN ignores surrounding whitespace.
func (vvs *VoterVerificationService) VerifyNIN(nin string) error {
	if !ninPattern.MatchString(strings.TrimSpace(nin)) {
		return ErrInvalidNIN
	}
	return nil
}

// Commitment returns keccak256 over the UTF-8 bytes of the trimmed nin.
func (vvs *VoterVerificationService) Commitment(nin string) (common.Hash, error) {
	nin = strings.TrimSpace(nin)
	if err := vvs.VerifyNIN(nin); err != nil {
		return common.Hash{}, err
	}
	return vvs.cryptoService.Commitment([]byte(nin)), nil
}
