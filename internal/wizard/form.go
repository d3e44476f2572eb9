// Package wizard turns the multi-step configuration form into a complete
// initial value stream map.
package wizard

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rendis/vsm/pkg/schema"
)

// Form is the whole wizard input. It can be written as YAML or JSON.
type Form struct {
	Title             string         `yaml:"title" json:"title" validate:"max=120"`
	Customer          CustomerStep   `yaml:"customer" json:"customer"`
	Supplier          SupplierStep   `yaml:"supplier" json:"supplier"`
	Receiving         *InventoryStep `yaml:"receiving" json:"receiving,omitempty"`
	Processes         []ProcessStep  `yaml:"processes" json:"processes" validate:"required,min=1,max=50,dive"`
	FinishedGoods     *InventoryStep `yaml:"finishedGoods" json:"finishedGoods,omitempty"`
	ProductionControl ControlStep    `yaml:"productionControl" json:"productionControl"`
}

// CustomerStep describes demand.
type CustomerStep struct {
	Name                  string  `yaml:"name" json:"name" validate:"max=80"`
	DemandPerDay          float64 `yaml:"demandPerDay" json:"demandPerDay" validate:"gte=0"`
	Shifts                float64 `yaml:"shifts" json:"shifts" validate:"gte=0,lte=4"`
	HoursPerShift         float64 `yaml:"hoursPerShift" json:"hoursPerShift" validate:"gte=0,lte=24"`
	AvailableTimePerShift float64 `yaml:"availableTimePerShift" json:"availableTimePerShift" validate:"gte=0,lte=1440"`
	PackSize              float64 `yaml:"packSize" json:"packSize" validate:"gte=0"`
}

// SupplierStep describes the raw material source.
type SupplierStep struct {
	Name      string `yaml:"name" json:"name" validate:"max=80"`
	Frequency string `yaml:"frequency" json:"frequency" validate:"max=80"`
}

// ProcessStep is one box of the process row. Percentages left empty take
// the registry default of 100. The last process's InventoryAfter is the
// finished goods buffer.
type ProcessStep struct {
	Name               string         `yaml:"name" json:"name" validate:"required,max=80"`
	CycleTime          float64        `yaml:"cycleTime" json:"cycleTime" validate:"gte=0"`
	ChangeoverTime     float64        `yaml:"changeoverTime" json:"changeoverTime" validate:"gte=0"`
	ValueAddedTime     *float64       `yaml:"valueAddedTime" json:"valueAddedTime,omitempty" validate:"omitempty,gte=0"`
	UptimePercent      *float64       `yaml:"uptimePercent" json:"uptimePercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	PerformancePercent *float64       `yaml:"performancePercent" json:"performancePercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	YieldPercent       *float64       `yaml:"yieldPercent" json:"yieldPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Operators          int            `yaml:"operators" json:"operators" validate:"gte=0,lte=1000"`
	Role               string         `yaml:"role" json:"role" validate:"omitempty,oneof=normal pacemaker shared outside"`
	InventoryAfter     *InventoryStep `yaml:"inventoryAfter" json:"inventoryAfter,omitempty"`
}

// InventoryStep is a buffer between two steps of the flow.
type InventoryStep struct {
	Name         string  `yaml:"name" json:"name" validate:"max=80"`
	Symbol       string  `yaml:"symbol" json:"symbol" validate:"omitempty,oneof=inventory supermarket fifo safetyStock finishedGoods"`
	Amount       float64 `yaml:"amount" json:"amount" validate:"gte=0"`
	LeadTimeDays float64 `yaml:"leadTimeDays" json:"leadTimeDays" validate:"gte=0"`
}

// ControlStep configures the production control box and its information flows.
type ControlStep struct {
	Name       string `yaml:"name" json:"name" validate:"max=80"`
	Electronic bool   `yaml:"electronic" json:"electronic"`
	Omit       bool   `yaml:"omit" json:"omit"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes a YAML or JSON form and validates it.
func Parse(data []byte) (*Form, error) {
	var form Form
	if err := yaml.Unmarshal(data, &form); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "wizard form is not valid YAML or JSON").WithCause(err)
	}
	if err := Validate(&form); err != nil {
		return nil, err
	}
	return &form, nil
}

// Validate checks the form's field constraints. Every violation is listed in
// the error's details.
func Validate(form *Form) error {
	if form == nil {
		return schema.NewError(schema.ErrCodeValidation, "wizard form is required")
	}
	var violations []string
	if err := validate.Struct(form); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
		}
		for _, e := range verrs {
			violations = append(violations, describe(e))
		}
	}
	if n := len(form.Processes); n > 0 && form.Processes[n-1].InventoryAfter != nil && form.FinishedGoods != nil {
		violations = append(violations, fmt.Sprintf(
			"processes[%d].inventoryAfter: the last process feeds finishedGoods; set only one of them", n-1))
	}
	if len(violations) == 0 {
		return nil
	}
	msg := violations[0]
	if len(violations) > 1 {
		msg = fmt.Sprintf("wizard form has %d invalid fields", len(violations))
	}
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

func describe(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Form.")
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s: field is required", field)
	case "min":
		return fmt.Sprintf("%s: must have at least %s entries", field, e.Param())
	case "max":
		return fmt.Sprintf("%s: must not exceed %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s: must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s: must not exceed %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", field, e.Param())
	default:
		return fmt.Sprintf("%s: validation failed (%s)", field, e.Tag())
	}
}
