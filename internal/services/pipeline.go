package services

import (
  "context"
  "errors"
  "fmt"
  "sort"
  "strconv"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/connectplus/backend/internal/cache"
  "github.com/connectplus/backend/internal/domain"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/repos"
  "github.com/connectplus/backend/internal/requestdata"
  "github.com/connectplus/backend/internal/types"
)

// StepPatch carries a step transition request. A nil Status leaves the
// step status unchanged; Data is shallow-merged into the step's
// existing payload (new keys overwrite, all other keys are preserved).
type StepPatch struct {
  Status    *string                   `json:"status,omitempty"`
  Data      map[string]interface{}    `json:"data,omitempty"`
}

// PipelineService is the order pipeline engine: it creates pipelines,
// enforces step ordering and role-gated transitions, auto-advances
// stages, appends audit logs and keeps the Customer PO record in sync.
type PipelineService interface {
  Create(ctx context.Context, tx *gorm.DB, dealID, accountID uuid.UUID) (*types.OrderPipeline, error)
  // GetAll lists pipelines for the caller's organization. A global
  // override caller may pass an explicit tenant filter, or nil for all
  // tenants; the filter is ignored for everyone else.
  GetAll(ctx context.Context, tx *gorm.DB, orgFilter *uuid.UUID) ([]*types.OrderPipeline, error)
  GetOne(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID) (*types.OrderPipeline, error)
  TransitionStep(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, stepName string, patch StepPatch) (*types.PipelineStep, error)
}

type pipelineService struct {
  db              *gorm.DB
  log             *logger.Logger
  dealRepo        repos.DealRepo
  accountRepo     repos.AccountRepo
  pipelineRepo    repos.OrderPipelineRepo
  stepRepo        repos.PipelineStepRepo
  logRepo         repos.PipelineLogRepo
  customerPoRepo  repos.CustomerPoRepo
  listCache       cache.PipelineCache
}

func NewPipelineService(
  db *gorm.DB,
  baseLog *logger.Logger,
  dealRepo repos.DealRepo,
  accountRepo repos.AccountRepo,
  pipelineRepo repos.OrderPipelineRepo,
  stepRepo repos.PipelineStepRepo,
  logRepo repos.PipelineLogRepo,
  customerPoRepo repos.CustomerPoRepo,
  listCache cache.PipelineCache,
) PipelineService {
  serviceLog := baseLog.With("service", "PipelineService")
  return &pipelineService{
    db:             db,
    log:            serviceLog,
    dealRepo:       dealRepo,
    accountRepo:    accountRepo,
    pipelineRepo:   pipelineRepo,
    stepRepo:       stepRepo,
    logRepo:        logRepo,
    customerPoRepo: customerPoRepo,
    listCache:      listCache,
  }
}

func (ps *pipelineService) Create(ctx context.Context, tx *gorm.DB, dealID, accountID uuid.UUID) (*types.OrderPipeline, error) {
  const op = "pipeline.create"
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, domain.NewError(domain.CodeForbidden, op, "caller identity not resolved", nil)
  }
  transaction := tx
  if transaction == nil {
    transaction = ps.db
  }

  deals, err := ps.dealRepo.GetByIDs(ctx, transaction, []uuid.UUID{dealID})
  if err != nil {
    ps.log.Error("Load deal failed", "error", err, "deal_id", dealID)
    return nil, MapError(op, err)
  }
  if len(deals) == 0 || deals[0] == nil {
    return nil, domain.NewError(domain.CodeNotFound, op, "deal not found", nil)
  }
  deal := deals[0]

  if !rd.GlobalOverride && deal.OrganizationID != rd.OrganizationID {
    return nil, domain.NewError(domain.CodeForbidden, op, "caller does not belong to the deal's organization", nil)
  }

  if accountID == uuid.Nil {
    accountID = deal.AccountID
  }
  if accountID != deal.AccountID {
    accounts, err := ps.accountRepo.GetByIDs(ctx, transaction, []uuid.UUID{accountID})
    if err != nil {
      ps.log.Error("Load account failed", "error", err, "account_id", accountID)
      return nil, MapError(op, err)
    }
    if len(accounts) == 0 || accounts[0] == nil || accounts[0].OrganizationID != deal.OrganizationID {
      return nil, domain.NewError(domain.CodeValidation, op, "account does not belong to the deal's organization", nil)
    }
  }

  exists, err := ps.pipelineRepo.ExistsForDeal(ctx, transaction, dealID)
  if err != nil {
    ps.log.Error("Pipeline existence check failed", "error", err, "deal_id", dealID)
    return nil, MapError(op, err)
  }
  if exists {
    return nil, domain.NewError(domain.CodeConflict, op, "an order pipeline already exists for this deal", nil)
  }

  pipelineID := uuid.New()
  now := time.Now()
  txErr := ps.inTransaction(ctx, transaction, func(txn *gorm.DB) error {
    pipeline := &types.OrderPipeline{
      ID:             pipelineID,
      OrganizationID: deal.OrganizationID,
      DealID:         dealID,
      AccountID:      accountID,
      CurrentStage:   domain.FirstStep().Name,
      Status:         types.PipelineStatusActive,
      CreatedAt:      now,
      UpdatedAt:      now,
    }
    if _, err := ps.pipelineRepo.Create(ctx, txn, pipeline); err != nil {
      return err
    }

    catalogSteps := domain.CatalogSteps()
    steps := make([]*types.PipelineStep, 0, len(catalogSteps))
    for i, cs := range catalogSteps {
      status := types.StepStatusPending
      if i == 0 {
        status = types.StepStatusInProgress
      }
      steps = append(steps, &types.PipelineStep{
        ID:           uuid.New(),
        PipelineID:   pipelineID,
        StepName:     cs.Name,
        AssignedRole: string(cs.AssignedRole),
        Status:       status,
        Data:         datatypes.JSONMap{types.StepDataKeyDescription: cs.Description},
        CreatedAt:    now,
        UpdatedAt:    now,
      })
    }
    if _, err := ps.stepRepo.Create(ctx, txn, steps); err != nil {
      return err
    }

    creation := &types.PipelineLog{
      ID:          uuid.New(),
      PipelineID:  pipelineID,
      StepName:    domain.FirstStep().Name,
      Action:      "Pipeline created",
      PerformedBy: rd.UserID,
      CreatedAt:   now,
    }
    _, err := ps.logRepo.Create(ctx, txn, []*types.PipelineLog{creation})
    return err
  })
  if txErr != nil {
    ps.log.Error("Create pipeline failed", "error", txErr, "deal_id", dealID)
    return nil, MapError(op, txErr)
  }

  ps.invalidateList(ctx, deal.OrganizationID)
  return ps.GetOne(ctx, transaction, pipelineID)
}

func (ps *pipelineService) GetAll(ctx context.Context, tx *gorm.DB, orgFilter *uuid.UUID) ([]*types.OrderPipeline, error) {
  const op = "pipeline.get_all"
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, domain.NewError(domain.CodeForbidden, op, "caller identity not resolved", nil)
  }
  transaction := tx
  if transaction == nil {
    transaction = ps.db
  }

  // Non-privileged callers are always scoped to their own tenant.
  effective := orgFilter
  if !rd.GlobalOverride {
    orgID := rd.OrganizationID
    effective = &orgID
  }

  if effective == nil {
    pipelines, err := ps.pipelineRepo.GetAll(ctx, transaction, nil)
    if err != nil {
      ps.log.Error("GetAll pipelines failed", "error", err)
      return nil, MapError(op, err)
    }
    for _, p := range pipelines {
      sortStepsByCatalog(p.Steps)
    }
    return pipelines, nil
  }

  if ps.listCache != nil {
    if cached, ok := ps.listCache.GetList(ctx, *effective); ok {
      return cached, nil
    }
  }
  pipelines, err := ps.pipelineRepo.GetAll(ctx, transaction, effective)
  if err != nil {
    ps.log.Error("GetAll pipelines failed", "error", err, "organization_id", *effective)
    return nil, MapError(op, err)
  }
  for _, p := range pipelines {
    sortStepsByCatalog(p.Steps)
  }
  if ps.listCache != nil {
    ps.listCache.SetList(ctx, *effective, pipelines)
  }
  return pipelines, nil
}

func (ps *pipelineService) GetOne(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID) (*types.OrderPipeline, error) {
  const op = "pipeline.get_one"
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, domain.NewError(domain.CodeForbidden, op, "caller identity not resolved", nil)
  }
  transaction := tx
  if transaction == nil {
    transaction = ps.db
  }

  pipeline, err := ps.pipelineRepo.GetByID(ctx, transaction, pipelineID)
  if err != nil {
    if !errors.Is(err, gorm.ErrRecordNotFound) {
      ps.log.Error("GetOne pipeline failed", "error", err, "pipeline_id", pipelineID)
    }
    return nil, MapError(op, err)
  }
  // Cross-tenant reads report not found, never forbidden, so existence
  // does not leak across organizations.
  if !rd.GlobalOverride && pipeline.OrganizationID != rd.OrganizationID {
    return nil, domain.NewError(domain.CodeNotFound, op, "order pipeline not found", nil)
  }

  logs, err := ps.logRepo.GetByPipelineID(ctx, transaction, pipelineID)
  if err != nil {
    ps.log.Error("Load pipeline logs failed", "error", err, "pipeline_id", pipelineID)
    return nil, MapError(op, err)
  }
  pipeline.Logs = logs

  sortStepsByCatalog(pipeline.Steps)
  return pipeline, nil
}

func (ps *pipelineService) TransitionStep(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, stepName string, patch StepPatch) (*types.PipelineStep, error) {
  const op = "pipeline.transition_step"
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, domain.NewError(domain.CodeForbidden, op, "caller identity not resolved", nil)
  }
  if patch.Status != nil {
    switch *patch.Status {
    case types.StepStatusPending, types.StepStatusInProgress, types.StepStatusCompleted:
    default:
      return nil, domain.NewError(domain.CodeValidation, op,
        fmt.Sprintf("status %q is not one of PENDING, IN_PROGRESS, COMPLETED", *patch.Status), nil)
    }
  }
  transaction := tx
  if transaction == nil {
    transaction = ps.db
  }

  pipeline, err := ps.GetOne(ctx, transaction, pipelineID)
  if err != nil {
    return nil, err
  }

  var target *types.PipelineStep
  for _, step := range pipeline.Steps {
    if step.StepName == stepName {
      target = step
      break
    }
  }
  if target == nil {
    return nil, domain.NewError(domain.CodeNotFound, op, fmt.Sprintf("step %q not found in pipeline", stepName), nil)
  }

  required, ok := domain.RoleForStep(stepName)
  if !ok {
    required, ok = domain.ParseRole(target.AssignedRole)
    if !ok {
      return nil, domain.NewError(domain.CodeInternal, op, fmt.Sprintf("step %q carries unresolvable role %q", stepName, target.AssignedRole), nil)
    }
  }
  if !rd.GlobalOverride && !rd.HasRole(required) && !rd.HasRole(domain.RoleOrgAdmin) {
    return nil, domain.NewError(domain.CodeForbidden, op, fmt.Sprintf("step %q requires role %q", stepName, required), nil)
  }

  var updated *types.PipelineStep
  txErr := ps.inTransaction(ctx, transaction, func(txn *gorm.DB) error {
    // Re-read the step with a row lock: concurrent transitions on the
    // same step serialize here and the merge below is computed against
    // the committed row.
    locked, err := ps.stepRepo.GetByPipelineAndName(ctx, txn, pipeline.ID, stepName, true)
    if err != nil {
      return err
    }

    newStatus := locked.Status
    if patch.Status != nil {
      newStatus = *patch.Status
    }
    data := locked.Data
    if data == nil {
      data = datatypes.JSONMap{}
    }
    for k, v := range patch.Data {
      data[k] = v
    }

    now := time.Now()
    locked.Status = newStatus
    locked.Data = data
    locked.UpdatedBy = &rd.UserID
    locked.UpdatedAt = now
    if _, err := ps.stepRepo.Update(ctx, txn, locked); err != nil {
      return err
    }

    entry := &types.PipelineLog{
      ID:          uuid.New(),
      PipelineID:  pipeline.ID,
      StepName:    stepName,
      Action:      fmt.Sprintf("Step %q set to %s", stepName, newStatus),
      PerformedBy: rd.UserID,
      CreatedAt:   now,
    }
    if _, err := ps.logRepo.Create(ctx, txn, []*types.PipelineLog{entry}); err != nil {
      return err
    }

    if newStatus == types.StepStatusCompleted {
      if next, hasNext := domain.NextStep(stepName); hasNext {
        nextStep, err := ps.stepRepo.GetByPipelineAndName(ctx, txn, pipeline.ID, next, true)
        if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
          return err
        }
        if err == nil && nextStep.Status == types.StepStatusPending {
          nextStep.Status = types.StepStatusInProgress
          nextStep.UpdatedAt = now
          if _, err := ps.stepRepo.Update(ctx, txn, nextStep); err != nil {
            return err
          }
        }
        // currentStage tracks furthest declared progress; it advances
        // even when the next step instance already moved on.
        if err := ps.pipelineRepo.UpdateCurrentStage(ctx, txn, pipeline.ID, next); err != nil {
          return err
        }
      } else if domain.IsLastStep(stepName) {
        if err := ps.pipelineRepo.UpdateStatus(ctx, txn, pipeline.ID, types.PipelineStatusCompleted); err != nil {
          return err
        }
      }

      if stepName == domain.StepCustomerPo {
        if err := ps.syncCustomerPo(ctx, txn, pipeline, data, now); err != nil {
          return err
        }
      }
    }

    updated = locked
    return nil
  })
  if txErr != nil {
    ps.log.Error("TransitionStep failed", "error", txErr, "pipeline_id", pipelineID, "step_name", stepName)
    return nil, MapError(op, txErr)
  }

  ps.invalidateList(ctx, pipeline.OrganizationID)
  return updated, nil
}

// syncCustomerPo upserts the dependent Customer PO record keyed by
// (dealID, poNumber). No-op when the merged payload carries no PO
// number.
func (ps *pipelineService) syncCustomerPo(ctx context.Context, txn *gorm.DB, pipeline *types.OrderPipeline, data datatypes.JSONMap, now time.Time) error {
  poNumber := stringValue(data, types.StepDataKeyPoNumber)
  if poNumber == "" {
    return nil
  }

  existing, err := ps.customerPoRepo.GetByDealAndNumber(ctx, txn, pipeline.DealID, poNumber)
  switch {
  case err == nil:
    if poDate := timeValue(data, types.StepDataKeyPoDate); poDate != nil {
      existing.PoDate = poDate
    }
    if documentURL := stringValue(data, types.StepDataKeyDocumentURL); documentURL != "" {
      existing.DocumentURL = documentURL
    }
    if value, ok := floatValue(data, types.StepDataKeyValue); ok {
      existing.Value = value
    }
    if status := stringValue(data, "status"); status != "" {
      existing.Status = status
    }
    existing.UpdatedAt = now
    _, err = ps.customerPoRepo.Update(ctx, txn, existing)
    return err
  case errors.Is(err, gorm.ErrRecordNotFound):
    po := &types.CustomerPo{
      ID:             uuid.New(),
      OrganizationID: pipeline.OrganizationID,
      DealID:         pipeline.DealID,
      PoNumber:       poNumber,
      PoDate:         timeValue(data, types.StepDataKeyPoDate),
      DocumentURL:    stringValue(data, types.StepDataKeyDocumentURL),
      Status:         types.CustomerPoStatusReceived,
      CreatedAt:      now,
      UpdatedAt:      now,
    }
    if value, ok := floatValue(data, types.StepDataKeyValue); ok {
      po.Value = value
    }
    _, err = ps.customerPoRepo.Create(ctx, txn, po)
    return err
  default:
    return err
  }
}

func (ps *pipelineService) inTransaction(ctx context.Context, tx *gorm.DB, fn func(txn *gorm.DB) error) error {
  if tx == nil {
    return fn(nil)
  }
  return tx.WithContext(ctx).Transaction(fn)
}

func (ps *pipelineService) invalidateList(ctx context.Context, organizationID uuid.UUID) {
  if ps.listCache == nil {
    return
  }
  ps.listCache.Invalidate(ctx, organizationID)
}

// sortStepsByCatalog orders steps by the catalog's total order. Storage
// order is not guaranteed to match the workflow sequence; unknown step
// names sort last.
func sortStepsByCatalog(steps []*types.PipelineStep) {
  sort.SliceStable(steps, func(i, j int) bool {
    return catalogRank(steps[i].StepName) < catalogRank(steps[j].StepName)
  })
}

func catalogRank(stepName string) int {
  if i, ok := domain.StepIndex(stepName); ok {
    return i
  }
  return len(domain.CatalogSteps())
}

func stringValue(data datatypes.JSONMap, key string) string {
  if v, ok := data[key].(string); ok {
    return strings.TrimSpace(v)
  }
  return ""
}

func floatValue(data datatypes.JSONMap, key string) (float64, bool) {
  switch v := data[key].(type) {
  case float64:
    return v, true
  case int:
    return float64(v), true
  case int64:
    return float64(v), true
  case string:
    f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
    if err != nil {
      return 0, false
    }
    return f, true
  default:
    return 0, false
  }
}

func timeValue(data datatypes.JSONMap, key string) *time.Time {
  raw := stringValue(data, key)
  if raw == "" {
    return nil
  }
  for _, layout := range []string{time.RFC3339, "2006-01-02"} {
    if t, err := time.Parse(layout, raw); err == nil {
      return &t
    }
  }
  return nil
}
