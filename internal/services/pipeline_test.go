package services

import (
  "context"
  "sort"
  "strings"
  "testing"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/connectplus/backend/internal/domain"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/requestdata"
  "github.com/connectplus/backend/internal/types"
)

// In-memory state shared by the fake repos.
type engineState struct {
  deals     map[uuid.UUID]*types.Deal
  accounts  map[uuid.UUID]*types.Account
  pipelines map[uuid.UUID]*types.OrderPipeline
  steps     []*types.PipelineStep
  logs      []*types.PipelineLog
  pos       []*types.CustomerPo
}

func newEngineState() *engineState {
  return &engineState{
    deals:     map[uuid.UUID]*types.Deal{},
    accounts:  map[uuid.UUID]*types.Account{},
    pipelines: map[uuid.UUID]*types.OrderPipeline{},
  }
}

type fakeDealRepo struct{ st *engineState }

func (fr *fakeDealRepo) GetByIDs(ctx context.Context, tx *gorm.DB, dealIDs []uuid.UUID) ([]*types.Deal, error) {
  var out []*types.Deal
  for _, id := range dealIDs {
    if d, ok := fr.st.deals[id]; ok {
      out = append(out, d)
    }
  }
  return out, nil
}

type fakeAccountRepo struct{ st *engineState }

func (fr *fakeAccountRepo) GetByIDs(ctx context.Context, tx *gorm.DB, accountIDs []uuid.UUID) ([]*types.Account, error) {
  var out []*types.Account
  for _, id := range accountIDs {
    if a, ok := fr.st.accounts[id]; ok {
      out = append(out, a)
    }
  }
  return out, nil
}

type fakePipelineRepo struct{ st *engineState }

func (fr *fakePipelineRepo) Create(ctx context.Context, tx *gorm.DB, pipeline *types.OrderPipeline) (*types.OrderPipeline, error) {
  fr.st.pipelines[pipeline.ID] = pipeline
  return pipeline, nil
}

func (fr *fakePipelineRepo) GetByID(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID) (*types.OrderPipeline, error) {
  p, ok := fr.st.pipelines[pipelineID]
  if !ok {
    return nil, gorm.ErrRecordNotFound
  }
  hydrated := *p
  hydrated.Deal = fr.st.deals[p.DealID]
  hydrated.Account = fr.st.accounts[p.AccountID]
  hydrated.Steps = nil
  for _, s := range fr.st.steps {
    if s.PipelineID == pipelineID {
      hydrated.Steps = append(hydrated.Steps, s)
    }
  }
  return &hydrated, nil
}

func (fr *fakePipelineRepo) GetAll(ctx context.Context, tx *gorm.DB, organizationID *uuid.UUID) ([]*types.OrderPipeline, error) {
  var out []*types.OrderPipeline
  for id, p := range fr.st.pipelines {
    if organizationID != nil && p.OrganizationID != *organizationID {
      continue
    }
    hydrated, err := fr.GetByID(ctx, tx, id)
    if err != nil {
      return nil, err
    }
    out = append(out, hydrated)
  }
  sort.SliceStable(out, func(i, j int) bool {
    return out[i].CreatedAt.After(out[j].CreatedAt)
  })
  return out, nil
}

func (fr *fakePipelineRepo) ExistsForDeal(ctx context.Context, tx *gorm.DB, dealID uuid.UUID) (bool, error) {
  for _, p := range fr.st.pipelines {
    if p.DealID == dealID {
      return true, nil
    }
  }
  return false, nil
}

func (fr *fakePipelineRepo) UpdateCurrentStage(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, stage string) error {
  p, ok := fr.st.pipelines[pipelineID]
  if !ok {
    return gorm.ErrRecordNotFound
  }
  p.CurrentStage = stage
  return nil
}

func (fr *fakePipelineRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, status string) error {
  p, ok := fr.st.pipelines[pipelineID]
  if !ok {
    return gorm.ErrRecordNotFound
  }
  p.Status = status
  return nil
}

type fakeStepRepo struct{ st *engineState }

func (fr *fakeStepRepo) Create(ctx context.Context, tx *gorm.DB, steps []*types.PipelineStep) ([]*types.PipelineStep, error) {
  fr.st.steps = append(fr.st.steps, steps...)
  return steps, nil
}

func (fr *fakeStepRepo) GetByPipelineAndName(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, stepName string, lock bool) (*types.PipelineStep, error) {
  for _, s := range fr.st.steps {
    if s.PipelineID == pipelineID && s.StepName == stepName {
      return s, nil
    }
  }
  return nil, gorm.ErrRecordNotFound
}

func (fr *fakeStepRepo) Update(ctx context.Context, tx *gorm.DB, step *types.PipelineStep) (*types.PipelineStep, error) {
  for _, s := range fr.st.steps {
    if s.ID == step.ID {
      s.Status = step.Status
      s.Data = step.Data
      s.UpdatedBy = step.UpdatedBy
      s.UpdatedAt = step.UpdatedAt
      return s, nil
    }
  }
  return nil, gorm.ErrRecordNotFound
}

type fakeLogRepo struct{ st *engineState }

func (fr *fakeLogRepo) Create(ctx context.Context, tx *gorm.DB, logs []*types.PipelineLog) ([]*types.PipelineLog, error) {
  fr.st.logs = append(fr.st.logs, logs...)
  return logs, nil
}

func (fr *fakeLogRepo) GetByPipelineID(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID) ([]*types.PipelineLog, error) {
  var out []*types.PipelineLog
  for _, l := range fr.st.logs {
    if l.PipelineID == pipelineID {
      out = append(out, l)
    }
  }
  sort.SliceStable(out, func(i, j int) bool {
    return out[i].CreatedAt.After(out[j].CreatedAt)
  })
  return out, nil
}

type fakeCustomerPoRepo struct{ st *engineState }

func (fr *fakeCustomerPoRepo) GetByDealAndNumber(ctx context.Context, tx *gorm.DB, dealID uuid.UUID, poNumber string) (*types.CustomerPo, error) {
  for _, po := range fr.st.pos {
    if po.DealID == dealID && po.PoNumber == poNumber {
      return po, nil
    }
  }
  return nil, gorm.ErrRecordNotFound
}

func (fr *fakeCustomerPoRepo) Create(ctx context.Context, tx *gorm.DB, po *types.CustomerPo) (*types.CustomerPo, error) {
  fr.st.pos = append(fr.st.pos, po)
  return po, nil
}

func (fr *fakeCustomerPoRepo) Update(ctx context.Context, tx *gorm.DB, po *types.CustomerPo) (*types.CustomerPo, error) {
  return po, nil
}

type fakePipelineCache struct {
  lists       map[uuid.UUID][]*types.OrderPipeline
  invalidates int
}

func (fc *fakePipelineCache) GetList(ctx context.Context, organizationID uuid.UUID) ([]*types.OrderPipeline, bool) {
  if fc.lists == nil {
    return nil, false
  }
  list, ok := fc.lists[organizationID]
  return list, ok
}

func (fc *fakePipelineCache) SetList(ctx context.Context, organizationID uuid.UUID, pipelines []*types.OrderPipeline) {
  if fc.lists == nil {
    fc.lists = map[uuid.UUID][]*types.OrderPipeline{}
  }
  fc.lists[organizationID] = pipelines
}

func (fc *fakePipelineCache) Invalidate(ctx context.Context, organizationID uuid.UUID) {
  fc.invalidates++
  delete(fc.lists, organizationID)
}

type engineFixture struct {
  svc   PipelineService
  st    *engineState
  cache *fakePipelineCache
  orgID uuid.UUID
  deal  *types.Deal
}

func newEngineFixture(t *testing.T) *engineFixture {
  t.Helper()
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  st := newEngineState()
  fc := &fakePipelineCache{}
  svc := NewPipelineService(
    nil,
    log,
    &fakeDealRepo{st: st},
    &fakeAccountRepo{st: st},
    &fakePipelineRepo{st: st},
    &fakeStepRepo{st: st},
    &fakeLogRepo{st: st},
    &fakeCustomerPoRepo{st: st},
    fc,
  )

  orgID := uuid.New()
  accountID := uuid.New()
  st.accounts[accountID] = &types.Account{ID: accountID, OrganizationID: orgID, Name: "Acme Networks"}
  dealID := uuid.New()
  deal := &types.Deal{ID: dealID, OrganizationID: orgID, AccountID: accountID, Amount: 125000, Stage: "Negotiation"}
  st.deals[dealID] = deal

  return &engineFixture{svc: svc, st: st, cache: fc, orgID: orgID, deal: deal}
}

func callerCtx(orgID uuid.UUID, global bool, roles ...domain.Role) context.Context {
  rd := &requestdata.RequestData{
    UserID:         uuid.New(),
    OrganizationID: orgID,
    Roles:          roles,
    GlobalOverride: global,
  }
  return requestdata.WithRequestData(context.Background(), rd)
}

func strPtr(s string) *string { return &s }

func TestCreatePipelineInitialState(t *testing.T) {
  fx := newEngineFixture(t)
  ctx := callerCtx(fx.orgID, false, domain.RoleSales)

  pipeline, err := fx.svc.Create(ctx, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }
  if pipeline.CurrentStage != domain.StepLead {
    t.Fatalf("current stage: want=%q got=%q", domain.StepLead, pipeline.CurrentStage)
  }
  if pipeline.Status != types.PipelineStatusActive {
    t.Fatalf("status: want=%q got=%q", types.PipelineStatusActive, pipeline.Status)
  }
  if len(pipeline.Steps) != 10 {
    t.Fatalf("step count: want=10 got=%d", len(pipeline.Steps))
  }
  for i, step := range pipeline.Steps {
    wantStatus := types.StepStatusPending
    if i == 0 {
      wantStatus = types.StepStatusInProgress
    }
    if step.Status != wantStatus {
      t.Fatalf("step %q status: want=%q got=%q", step.StepName, wantStatus, step.Status)
    }
    if step.Data[types.StepDataKeyDescription] == "" {
      t.Fatalf("step %q missing description payload", step.StepName)
    }
  }
  if len(pipeline.Logs) != 1 {
    t.Fatalf("log count: want=1 got=%d", len(pipeline.Logs))
  }
  if pipeline.Logs[0].Action != "Pipeline created" {
    t.Fatalf("log action: got=%q", pipeline.Logs[0].Action)
  }
}

func TestCreatePipelineUnknownDealNotFound(t *testing.T) {
  fx := newEngineFixture(t)
  ctx := callerCtx(fx.orgID, false, domain.RoleSales)

  _, err := fx.svc.Create(ctx, nil, uuid.New(), uuid.Nil)
  if !domain.IsCode(err, domain.CodeNotFound) {
    t.Fatalf("expected not_found, got %q (%v)", domain.CodeOf(err), err)
  }
}

func TestCreatePipelineForeignOrganizationForbidden(t *testing.T) {
  fx := newEngineFixture(t)
  ctx := callerCtx(uuid.New(), false, domain.RoleSales)

  _, err := fx.svc.Create(ctx, nil, fx.deal.ID, uuid.Nil)
  if !domain.IsCode(err, domain.CodeForbidden) {
    t.Fatalf("expected forbidden, got %q (%v)", domain.CodeOf(err), err)
  }
}

func TestCreatePipelineTwiceConflicts(t *testing.T) {
  fx := newEngineFixture(t)
  ctx := callerCtx(fx.orgID, false, domain.RoleSales)

  if _, err := fx.svc.Create(ctx, nil, fx.deal.ID, uuid.Nil); err != nil {
    t.Fatalf("first Create: %v", err)
  }
  _, err := fx.svc.Create(ctx, nil, fx.deal.ID, uuid.Nil)
  if !domain.IsCode(err, domain.CodeConflict) {
    t.Fatalf("expected conflict, got %q (%v)", domain.CodeOf(err), err)
  }
}

func TestCreatePipelineGlobalOverrideCrossTenant(t *testing.T) {
  fx := newEngineFixture(t)
  ctx := callerCtx(uuid.New(), true)

  pipeline, err := fx.svc.Create(ctx, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create with global override: %v", err)
  }
  if pipeline.OrganizationID != fx.orgID {
    t.Fatalf("pipeline organization: want=%s got=%s", fx.orgID, pipeline.OrganizationID)
  }
}

func TestGetOneCrossTenantReturnsNotFound(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  foreign := callerCtx(uuid.New(), false, domain.RoleSales)
  _, err = fx.svc.GetOne(foreign, nil, pipeline.ID)
  if !domain.IsCode(err, domain.CodeNotFound) {
    t.Fatalf("expected not_found for cross-tenant read, got %q (%v)", domain.CodeOf(err), err)
  }
  if domain.IsCode(err, domain.CodeForbidden) {
    t.Fatalf("cross-tenant read must not leak existence via forbidden")
  }
}

func TestGetOneSortsStepsByCatalogOrder(t *testing.T) {
  fx := newEngineFixture(t)
  ctx := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(ctx, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  // Scramble storage order.
  sort.SliceStable(fx.st.steps, func(i, j int) bool {
    return fx.st.steps[i].StepName > fx.st.steps[j].StepName
  })

  got, err := fx.svc.GetOne(ctx, nil, pipeline.ID)
  if err != nil {
    t.Fatalf("GetOne: %v", err)
  }
  wantNames := domain.StepNames()
  if len(got.Steps) != len(wantNames) {
    t.Fatalf("step count: want=%d got=%d", len(wantNames), len(got.Steps))
  }
  for i, step := range got.Steps {
    if step.StepName != wantNames[i] {
      t.Fatalf("step order at %d: want=%q got=%q", i, wantNames[i], step.StepName)
    }
  }
}

func TestTransitionStepRoleGate(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  noRole := callerCtx(fx.orgID, false, domain.RoleLogistics)
  _, err = fx.svc.TransitionStep(noRole, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr(types.StepStatusCompleted)})
  if !domain.IsCode(err, domain.CodeForbidden) {
    t.Fatalf("expected forbidden, got %q (%v)", domain.CodeOf(err), err)
  }
  if msg := domain.MessageOf(err); !strings.Contains(msg, string(domain.RoleSales)) {
    t.Fatalf("forbidden error must name the required role, got %q", msg)
  }

  step, err := fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr(types.StepStatusCompleted)})
  if err != nil {
    t.Fatalf("TransitionStep with correct role: %v", err)
  }
  if step.Status != types.StepStatusCompleted {
    t.Fatalf("step status: want=%q got=%q", types.StepStatusCompleted, step.Status)
  }
}

func TestTransitionStepOrgAdminBypassesRoleGate(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  admin := callerCtx(fx.orgID, false, domain.RoleOrgAdmin)
  if _, err := fx.svc.TransitionStep(admin, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr(types.StepStatusCompleted)}); err != nil {
    t.Fatalf("TransitionStep as org admin: %v", err)
  }
}

func TestTransitionStepUnknownStepNotFound(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  _, err = fx.svc.TransitionStep(owner, nil, pipeline.ID, "No Such Step", StepPatch{Status: strPtr(types.StepStatusCompleted)})
  if !domain.IsCode(err, domain.CodeNotFound) {
    t.Fatalf("expected not_found, got %q (%v)", domain.CodeOf(err), err)
  }
}

func TestTransitionStepRejectsUnknownStatus(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  _, err = fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr("DONE")})
  if !domain.IsCode(err, domain.CodeValidation) {
    t.Fatalf("expected validation, got %q (%v)", domain.CodeOf(err), err)
  }
}

func TestTransitionStepShallowMergesData(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  leadStep, err := (&fakeStepRepo{st: fx.st}).GetByPipelineAndName(context.Background(), nil, pipeline.ID, domain.StepLead, false)
  if err != nil {
    t.Fatalf("seed lookup: %v", err)
  }
  leadStep.Data = datatypes.JSONMap{"a": float64(1), "b": float64(1)}

  step, err := fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepLead, StepPatch{
    Data: map[string]interface{}{"a": float64(2)},
  })
  if err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }
  if got := step.Data["a"]; got != float64(2) {
    t.Fatalf("merged key a: want=2 got=%v", got)
  }
  if got := step.Data["b"]; got != float64(1) {
    t.Fatalf("preserved key b: want=1 got=%v", got)
  }
  if step.Status != types.StepStatusInProgress {
    t.Fatalf("status must stay unchanged without a patch status, got %q", step.Status)
  }
}

func TestTransitionStepStampsUpdatedBy(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  step, err := fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr(types.StepStatusCompleted)})
  if err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }
  rd := requestdata.GetRequestData(owner)
  if step.UpdatedBy == nil || *step.UpdatedBy != rd.UserID {
    t.Fatalf("updated_by: want=%s got=%v", rd.UserID, step.UpdatedBy)
  }
}

func TestAutoAdvanceOnCompletion(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  if _, err := fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr(types.StepStatusCompleted)}); err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }

  got, err := fx.svc.GetOne(owner, nil, pipeline.ID)
  if err != nil {
    t.Fatalf("GetOne: %v", err)
  }
  if got.CurrentStage != domain.StepAccount {
    t.Fatalf("current stage: want=%q got=%q", domain.StepAccount, got.CurrentStage)
  }
  for _, step := range got.Steps {
    if step.StepName == domain.StepAccount && step.Status != types.StepStatusInProgress {
      t.Fatalf("next step status: want=%q got=%q", types.StepStatusInProgress, step.Status)
    }
  }
  if len(got.Logs) != 2 {
    t.Fatalf("log count after creation + transition: want=2 got=%d", len(got.Logs))
  }
}

func TestAutoAdvanceDoesNotRegressCompletedNextStep(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  accountStep, err := (&fakeStepRepo{st: fx.st}).GetByPipelineAndName(context.Background(), nil, pipeline.ID, domain.StepAccount, false)
  if err != nil {
    t.Fatalf("seed lookup: %v", err)
  }
  accountStep.Status = types.StepStatusCompleted

  if _, err := fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr(types.StepStatusCompleted)}); err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }

  got, err := fx.svc.GetOne(owner, nil, pipeline.ID)
  if err != nil {
    t.Fatalf("GetOne: %v", err)
  }
  if got.CurrentStage != domain.StepAccount {
    t.Fatalf("current stage still advances: want=%q got=%q", domain.StepAccount, got.CurrentStage)
  }
  for _, step := range got.Steps {
    if step.StepName == domain.StepAccount && step.Status != types.StepStatusCompleted {
      t.Fatalf("completed next step must not regress, got %q", step.Status)
    }
  }
}

func TestCompletingLastStepCompletesPipeline(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSupport)
  admin := callerCtx(fx.orgID, false, domain.RoleOrgAdmin)
  pipeline, err := fx.svc.Create(admin, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  if _, err := fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepClosureHandover, StepPatch{Status: strPtr(types.StepStatusCompleted)}); err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }

  got, err := fx.svc.GetOne(admin, nil, pipeline.ID)
  if err != nil {
    t.Fatalf("GetOne: %v", err)
  }
  if got.Status != types.PipelineStatusCompleted {
    t.Fatalf("pipeline status: want=%q got=%q", types.PipelineStatusCompleted, got.Status)
  }
  if got.CurrentStage != domain.StepClosureHandover {
    t.Fatalf("current stage must stay on the last step, got %q", got.CurrentStage)
  }
}

func TestCustomerPoUpsertOnCompletion(t *testing.T) {
  fx := newEngineFixture(t)
  finance := callerCtx(fx.orgID, false, domain.RoleFinance)
  admin := callerCtx(fx.orgID, false, domain.RoleOrgAdmin)
  pipeline, err := fx.svc.Create(admin, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  _, err = fx.svc.TransitionStep(finance, nil, pipeline.ID, domain.StepCustomerPo, StepPatch{
    Status: strPtr(types.StepStatusCompleted),
    Data:   map[string]interface{}{types.StepDataKeyPoNumber: "PO-1"},
  })
  if err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }
  if len(fx.st.pos) != 1 {
    t.Fatalf("customer po count: want=1 got=%d", len(fx.st.pos))
  }
  po := fx.st.pos[0]
  if po.PoNumber != "PO-1" || po.DealID != fx.deal.ID {
    t.Fatalf("customer po key: got deal=%s number=%q", po.DealID, po.PoNumber)
  }
  if po.Status != types.CustomerPoStatusReceived {
    t.Fatalf("customer po status: want=%q got=%q", types.CustomerPoStatusReceived, po.Status)
  }

  // Completing again with the same number updates, never duplicates.
  _, err = fx.svc.TransitionStep(finance, nil, pipeline.ID, domain.StepCustomerPo, StepPatch{
    Status: strPtr(types.StepStatusCompleted),
    Data: map[string]interface{}{
      types.StepDataKeyPoNumber:    "PO-1",
      types.StepDataKeyDocumentURL: "https://files.example.com/po-1.pdf",
    },
  })
  if err != nil {
    t.Fatalf("second TransitionStep: %v", err)
  }
  if len(fx.st.pos) != 1 {
    t.Fatalf("customer po count after repeat: want=1 got=%d", len(fx.st.pos))
  }
  if fx.st.pos[0].DocumentURL != "https://files.example.com/po-1.pdf" {
    t.Fatalf("customer po document url not updated, got %q", fx.st.pos[0].DocumentURL)
  }
}

func TestCustomerPoSkippedWithoutNumber(t *testing.T) {
  fx := newEngineFixture(t)
  finance := callerCtx(fx.orgID, false, domain.RoleFinance)
  admin := callerCtx(fx.orgID, false, domain.RoleOrgAdmin)
  pipeline, err := fx.svc.Create(admin, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }

  if _, err := fx.svc.TransitionStep(finance, nil, pipeline.ID, domain.StepCustomerPo, StepPatch{Status: strPtr(types.StepStatusCompleted)}); err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }
  if len(fx.st.pos) != 0 {
    t.Fatalf("customer po count: want=0 got=%d", len(fx.st.pos))
  }
}

func TestGetAllFiltersByOrganization(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  if _, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil); err != nil {
    t.Fatalf("Create: %v", err)
  }

  otherOrg := uuid.New()
  otherAccount := uuid.New()
  fx.st.accounts[otherAccount] = &types.Account{ID: otherAccount, OrganizationID: otherOrg, Name: "Globex"}
  otherDeal := uuid.New()
  fx.st.deals[otherDeal] = &types.Deal{ID: otherDeal, OrganizationID: otherOrg, AccountID: otherAccount}
  otherOwner := callerCtx(otherOrg, false, domain.RoleSales)
  if _, err := fx.svc.Create(otherOwner, nil, otherDeal, uuid.Nil); err != nil {
    t.Fatalf("Create for second organization: %v", err)
  }

  mine, err := fx.svc.GetAll(owner, nil, nil)
  if err != nil {
    t.Fatalf("GetAll: %v", err)
  }
  if len(mine) != 1 {
    t.Fatalf("tenant list: want=1 got=%d", len(mine))
  }
  if mine[0].OrganizationID != fx.orgID {
    t.Fatalf("tenant list organization: want=%s got=%s", fx.orgID, mine[0].OrganizationID)
  }

  all, err := fx.svc.GetAll(callerCtx(uuid.New(), true), nil, nil)
  if err != nil {
    t.Fatalf("GetAll with global override: %v", err)
  }
  if len(all) != 2 {
    t.Fatalf("global list: want=2 got=%d", len(all))
  }
}

func TestGetAllServesCachedListAndInvalidatesOnWrite(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)
  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }
  if fx.cache.invalidates == 0 {
    t.Fatalf("create must invalidate the tenant list cache")
  }

  if _, err := fx.svc.GetAll(owner, nil, nil); err != nil {
    t.Fatalf("GetAll: %v", err)
  }
  if _, ok := fx.cache.lists[fx.orgID]; !ok {
    t.Fatalf("GetAll must populate the tenant list cache")
  }

  before := fx.cache.invalidates
  if _, err := fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr(types.StepStatusCompleted)}); err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }
  if fx.cache.invalidates <= before {
    t.Fatalf("transition must invalidate the tenant list cache")
  }
  if _, ok := fx.cache.lists[fx.orgID]; ok {
    t.Fatalf("tenant list cache must be dropped after a transition")
  }
}

func TestEndToEndLeadToAccount(t *testing.T) {
  fx := newEngineFixture(t)
  owner := callerCtx(fx.orgID, false, domain.RoleSales)

  pipeline, err := fx.svc.Create(owner, nil, fx.deal.ID, uuid.Nil)
  if err != nil {
    t.Fatalf("Create: %v", err)
  }
  if len(pipeline.Steps) != 10 || pipeline.Steps[0].Status != types.StepStatusInProgress {
    t.Fatalf("fresh pipeline: steps=%d first=%q", len(pipeline.Steps), pipeline.Steps[0].Status)
  }

  if _, err := fx.svc.TransitionStep(owner, nil, pipeline.ID, domain.StepLead, StepPatch{Status: strPtr(types.StepStatusCompleted)}); err != nil {
    t.Fatalf("TransitionStep: %v", err)
  }

  got, err := fx.svc.GetOne(owner, nil, pipeline.ID)
  if err != nil {
    t.Fatalf("GetOne: %v", err)
  }
  if got.CurrentStage != domain.StepAccount {
    t.Fatalf("current stage: want=%q got=%q", domain.StepAccount, got.CurrentStage)
  }
  var accountStatus string
  for _, step := range got.Steps {
    if step.StepName == domain.StepAccount {
      accountStatus = step.Status
    }
  }
  if accountStatus != types.StepStatusInProgress {
    t.Fatalf("account step status: want=%q got=%q", types.StepStatusInProgress, accountStatus)
  }
  if len(got.Logs) != 2 {
    t.Fatalf("log count: want=2 got=%d", len(got.Logs))
  }
  if got.Logs[0].Action != `Step "Lead" set to COMPLETED` || got.Logs[1].Action != "Pipeline created" {
    t.Fatalf("logs must be newest first: got [%q, %q]", got.Logs[0].Action, got.Logs[1].Action)
  }
  if got.Logs[0].CreatedAt.Before(got.Logs[1].CreatedAt) {
    t.Fatalf("log timestamps must be descending")
  }
}
