package strategy

import (
	"fmt"
	"strings"

	"github.com/Strob0t/StratForge/internal/domain"
)

// ValidateCreate validates a CreateRequest.
func ValidateCreate(req *CreateRequest) error {
	if strings.TrimSpace(req.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	return nil
}

// ValidatePillarStatus checks if a pillar status value is valid.
func ValidatePillarStatus(s PillarStatus) error {
	switch s {
	case StatusIdle, StatusGenerating, StatusComplete, StatusError:
		return nil
	default:
		return fmt.Errorf("%w: invalid pillar status: %s", domain.ErrValidation, s)
	}
}

// ValidateTrigger checks if a trigger value is valid.
func ValidateTrigger(t Trigger) error {
	switch t {
	case TriggerManual, TriggerRegeneration, TriggerUpgrade, TriggerPillarUpdate, TriggerScheduled, TriggerQueue:
		return nil
	default:
		return fmt.Errorf("%w: invalid trigger: %s", domain.ErrValidation, t)
	}
}
