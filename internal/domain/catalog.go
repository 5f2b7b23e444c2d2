package domain

import "fmt"

// CatalogStep is one entry of the static order pipeline definition.
type CatalogStep struct {
	Name         string
	AssignedRole Role
	Description  string
}

const (
	StepLead                = "Lead"
	StepAccount             = "Account"
	StepDealOpportunity     = "Deal/Opportunity"
	StepCustomerPo          = "Customer PO"
	StepVendorPo            = "Procurement/Vendor PO"
	StepDeliveryLogistics   = "Delivery & Logistics"
	StepPhysicalVerify      = "Physical Verification"
	StepDeployment          = "Deployment"
	StepInvoicing           = "Invoicing"
	StepClosureHandover     = "Closure & Support Handover"
)

// The ten-step sales-to-delivery sequence. Order here is the total order
// of the workflow; every instantiated pipeline carries one step per entry.
var catalog = []CatalogStep{
	{Name: StepLead, AssignedRole: RoleSales, Description: "Qualify the originating lead and confirm opportunity ownership."},
	{Name: StepAccount, AssignedRole: RoleSales, Description: "Verify account master data and billing details."},
	{Name: StepDealOpportunity, AssignedRole: RoleSales, Description: "Close the commercial terms of the deal."},
	{Name: StepCustomerPo, AssignedRole: RoleFinance, Description: "Receive and register the customer purchase order."},
	{Name: StepVendorPo, AssignedRole: RoleProcurement, Description: "Raise vendor purchase orders for required material."},
	{Name: StepDeliveryLogistics, AssignedRole: RoleLogistics, Description: "Schedule shipment and track delivery to site."},
	{Name: StepPhysicalVerify, AssignedRole: RoleLogistics, Description: "Verify delivered material against the order."},
	{Name: StepDeployment, AssignedRole: RoleDeployment, Description: "Install and commission at the customer site."},
	{Name: StepInvoicing, AssignedRole: RoleFinance, Description: "Issue the customer invoice and record receivables."},
	{Name: StepClosureHandover, AssignedRole: RoleSupport, Description: "Close the order and hand over to support."},
}

var stepOrder map[string]int

func init() {
	stepOrder = make(map[string]int, len(catalog))
	for i, cs := range catalog {
		if !cs.AssignedRole.Valid() {
			panic(fmt.Sprintf("catalog step %q carries undeclared role %q", cs.Name, cs.AssignedRole))
		}
		if _, dup := stepOrder[cs.Name]; dup {
			panic(fmt.Sprintf("catalog step %q declared twice", cs.Name))
		}
		stepOrder[cs.Name] = i
	}
}

// CatalogSteps returns the full ordered catalog.
func CatalogSteps() []CatalogStep {
	out := make([]CatalogStep, len(catalog))
	copy(out, catalog)
	return out
}

// StepNames returns the catalog step names in workflow order.
func StepNames() []string {
	out := make([]string, len(catalog))
	for i, cs := range catalog {
		out[i] = cs.Name
	}
	return out
}

// StepIndex returns the position of a step name in the total order.
func StepIndex(name string) (int, bool) {
	i, ok := stepOrder[name]
	return i, ok
}

// NextStep returns the step name following the given one. ok is false
// for the last step and for unknown names.
func NextStep(name string) (string, bool) {
	i, ok := stepOrder[name]
	if !ok || i+1 >= len(catalog) {
		return "", false
	}
	return catalog[i+1].Name, true
}

// RoleForStep returns the role responsible for the named step.
func RoleForStep(name string) (Role, bool) {
	i, ok := stepOrder[name]
	if !ok {
		return "", false
	}
	return catalog[i].AssignedRole, true
}

// FirstStep returns the entry every new pipeline starts on.
func FirstStep() CatalogStep {
	return catalog[0]
}

// IsLastStep reports whether the named step closes the workflow.
func IsLastStep(name string) bool {
	i, ok := stepOrder[name]
	return ok && i == len(catalog)-1
}
