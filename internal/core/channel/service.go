package channel

import (
	"context"
	"fmt"

	"zpbitrix/platform/logger"

	"github.com/google/uuid"
)

// Service owns the instance-to-line mapping table.
type Service struct {
	logger       *logger.Logger
	mappings     Repository
	instances    InstanceStore
	integrations IntegrationStore
	locker       Locker
}

func NewService(logger *logger.Logger, mappings Repository, instances InstanceStore, integrations IntegrationStore, locker Locker) *Service {
	return &Service{
		logger:       logger,
		mappings:     mappings,
		instances:    instances,
		integrations: integrations,
		locker:       locker,
	}
}

// AddMapping links an instance to an open line. The instance must exist and
// belong to the integration's workspace; both sides of the link must be free.
func (s *Service) AddMapping(ctx context.Context, integrationID uuid.UUID, instanceID, lineID, lineName string) (*Mapping, error) {
	if instanceID == "" || lineID == "" {
		return nil, fmt.Errorf("instance id and line id are required")
	}

	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	instance, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, ErrInstanceNotFound
	}
	if instance.WorkspaceID != integ.WorkspaceID {
		return nil, ErrInstanceForeign
	}

	mapping := NewMapping(integrationID, instanceID, lineID, lineName)
	err = s.locker.WithLock(integrationID, func() error {
		return s.mappings.Create(ctx, mapping)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithFields("Channel mapping created", map[string]interface{}{
		"integration_id": integrationID.String(),
		"instance_id":    instanceID,
		"line_id":        lineID,
	})

	return mapping, nil
}

// RemoveMapping deactivates a mapping. The row stays for audit; the partial
// unique indexes only see active rows, so the pair can be re-mapped later.
func (s *Service) RemoveMapping(ctx context.Context, integrationID, mappingID uuid.UUID) error {
	return s.locker.WithLock(integrationID, func() error {
		mapping, err := s.mappings.GetByID(ctx, mappingID)
		if err != nil {
			return ErrMappingNotFound
		}
		if mapping.IntegrationID != integrationID {
			return ErrMappingNotFound
		}
		if !mapping.Active {
			return nil
		}
		if err := s.mappings.Deactivate(ctx, mappingID); err != nil {
			return err
		}
		s.logger.InfoWithFields("Channel mapping removed", map[string]interface{}{
			"integration_id": integrationID.String(),
			"mapping_id":     mappingID.String(),
		})
		return nil
	})
}

// ListMappings returns every mapping of the integration, active and retired.
func (s *Service) ListMappings(ctx context.Context, integrationID uuid.UUID) ([]*Mapping, error) {
	return s.mappings.ListByIntegration(ctx, integrationID)
}

// ResolveInstance finds the active mapping for an instance. Inbound message
// routing uses this to pick the destination line.
func (s *Service) ResolveInstance(ctx context.Context, instanceID string) (*Mapping, error) {
	mapping, err := s.mappings.GetActiveByInstance(ctx, instanceID)
	if err != nil {
		return nil, ErrMappingNotFound
	}
	return mapping, nil
}
