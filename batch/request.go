package batch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/scheme-engine/costing"
	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// CALCULATION TYPES
// =============================================================================

// CalculationType selects the projection of a costing: mode, main or
// additional scheme, full table or GRAND TOTAL only.
type CalculationType string

const (
	MainValue               CalculationType = "main_value"
	MainVolume              CalculationType = "main_volume"
	AdditionalValue         CalculationType = "additional_value"
	AdditionalVolume        CalculationType = "additional_volume"
	SummaryMainValue        CalculationType = "summary_main_value"
	SummaryMainVolume       CalculationType = "summary_main_volume"
	SummaryAdditionalValue  CalculationType = "summary_additional_value"
	SummaryAdditionalVolume CalculationType = "summary_additional_volume"
)

var calculationTypes = []CalculationType{
	MainValue, MainVolume, AdditionalValue, AdditionalVolume,
	SummaryMainValue, SummaryMainVolume, SummaryAdditionalValue, SummaryAdditionalVolume,
}

// CalculationTypes lists every valid type.
func CalculationTypes() []CalculationType {
	return append([]CalculationType(nil), calculationTypes...)
}

func (c CalculationType) Valid() bool {
	for _, t := range calculationTypes {
		if c == t {
			return true
		}
	}
	return false
}

func (c CalculationType) IsSummary() bool { return strings.HasPrefix(string(c), "summary_") }

func (c CalculationType) IsAdditional() bool { return strings.Contains(string(c), "additional_") }

// Mode is the computation mode the type forces.
func (c CalculationType) Mode() scheme.Mode {
	if strings.HasSuffix(string(c), "_volume") {
		return scheme.ModeVolume
	}
	return scheme.ModeValue
}

// =============================================================================
// REQUEST / RESPONSE
// =============================================================================

// Request is one costing call. SchemeIndex picks the additional scheme for
// additional types and defaults to 0 there; main types ignore it.
type Request struct {
	SchemeID        string          `json:"scheme_id" validate:"required,max=128"`
	SchemeIndex     *int            `json:"scheme_index,omitempty" validate:"omitempty,min=0"`
	CalculationType CalculationType `json:"calculation_type" validate:"required,calculation_type"`
	// TimeoutS shortens the runner's deadline for this request. Zero keeps it.
	TimeoutS float64 `json:"timeout_s,omitempty" validate:"gte=0"`
}

// Index returns the additional-scheme index to compute.
func (r Request) Index() int {
	if r.SchemeIndex == nil {
		return 0
	}
	return *r.SchemeIndex
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("calculation_type", func(fl validator.FieldLevel) bool {
		return CalculationType(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the request shape. Failures wrap ErrInvalidRequest.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%w: %w", scheme.ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(ves))
	for _, ve := range ves {
		fields = append(fields, ve.Field()+" failed "+ve.Tag())
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: %s", scheme.ErrInvalidRequest, strings.Join(fields, ", "))
}

// Response is the per-request outcome. Failures never escape a batch; they
// become a Response with Success false and the request echoed back.
type Response struct {
	RequestID      string           `json:"request_id"`
	Request        Request          `json:"request"`
	Success        bool             `json:"success"`
	Data           any              `json:"data,omitempty"`
	ExecutionTimeS float64          `json:"execution_time_s"`
	// RecordCount counts account rows; the GRAND TOTAL row is not one.
	RecordCount    int              `json:"record_count"`
	Message        string           `json:"message,omitempty"`
	ErrorKind      scheme.ErrorKind `json:"error_kind,omitempty"`
	Detail         string           `json:"detail,omitempty"`

	// Table is the projected result; nil on failure and for empty schemes.
	Table *costing.Table `json:"-"`
}
