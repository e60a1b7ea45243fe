package conversation

import (
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/catalog"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
)

// EnrichmentKind names a side effect the engine can ask the loop to perform.
type EnrichmentKind string

const (
	KindCheckEligibility       EnrichmentKind = "check_eligibility"
	KindDetectQuestion         EnrichmentKind = "detect_question"
	KindShouldEscalate         EnrichmentKind = "should_escalate"
	KindExtractCategory        EnrichmentKind = "extract_category"
	KindAnswerQuestion         EnrichmentKind = "answer_question"
	KindFetchCategories        EnrichmentKind = "fetch_categories"
	KindFetchProducts          EnrichmentKind = "fetch_products"
	KindGenerateBacklogApology EnrichmentKind = "generate_backlog_apology"
)

// AllEnrichmentKinds lists every kind in a stable order.
var AllEnrichmentKinds = []EnrichmentKind{
	KindCheckEligibility, KindDetectQuestion, KindShouldEscalate, KindExtractCategory,
	KindAnswerQuestion, KindFetchCategories, KindFetchProducts, KindGenerateBacklogApology,
}

// EnrichmentRequest is a side effect requested by the engine.
type EnrichmentRequest interface {
	Kind() EnrichmentKind
	isRequest()
}

// EnrichmentResult is the typed answer to an EnrichmentRequest. A result's
// Kind equals the kind of the request it answers.
type EnrichmentResult interface {
	Kind() EnrichmentKind
	isResult()
}

type CheckEligibilityRequest struct {
	DNI string
}

type DetectQuestionRequest struct {
	Message string
}

type ShouldEscalateRequest struct {
	Message string
}

type ExtractCategoryRequest struct {
	Message string
	Segment string
}

type AnswerQuestionRequest struct {
	Message  string
	Segment  string
	Category string
	Products []string
}

type FetchCategoriesRequest struct {
	Segment string
}

type FetchProductsRequest struct {
	Segment  string
	Category string
}

type GenerateBacklogApologyRequest struct {
	Name  string
	Delay time.Duration
}

func (CheckEligibilityRequest) Kind() EnrichmentKind       { return KindCheckEligibility }
func (DetectQuestionRequest) Kind() EnrichmentKind         { return KindDetectQuestion }
func (ShouldEscalateRequest) Kind() EnrichmentKind         { return KindShouldEscalate }
func (ExtractCategoryRequest) Kind() EnrichmentKind        { return KindExtractCategory }
func (AnswerQuestionRequest) Kind() EnrichmentKind         { return KindAnswerQuestion }
func (FetchCategoriesRequest) Kind() EnrichmentKind        { return KindFetchCategories }
func (FetchProductsRequest) Kind() EnrichmentKind          { return KindFetchProducts }
func (GenerateBacklogApologyRequest) Kind() EnrichmentKind { return KindGenerateBacklogApology }

func (CheckEligibilityRequest) isRequest()       {}
func (DetectQuestionRequest) isRequest()         {}
func (ShouldEscalateRequest) isRequest()         {}
func (ExtractCategoryRequest) isRequest()        {}
func (AnswerQuestionRequest) isRequest()         {}
func (FetchCategoriesRequest) isRequest()        {}
func (FetchProductsRequest) isRequest()          {}
func (GenerateBacklogApologyRequest) isRequest() {}

type EligibilityChecked struct {
	DNI    string
	Result eligibility.Result
}

type QuestionDetected struct {
	IsQuestion bool
}

type EscalationDecided struct {
	ShouldEscalate bool
	Reason         string
}

// CategoryExtracted carries an empty Category when nothing was recognized.
type CategoryExtracted struct {
	Category string
}

type QuestionAnswered struct {
	Answer string
}

type CategoriesFetched struct {
	Categories []string
}

type ProductsFetched struct {
	Category string
	Products []catalog.Product
}

type BacklogApologyGenerated struct {
	Text string
}

func (EligibilityChecked) Kind() EnrichmentKind      { return KindCheckEligibility }
func (QuestionDetected) Kind() EnrichmentKind        { return KindDetectQuestion }
func (EscalationDecided) Kind() EnrichmentKind       { return KindShouldEscalate }
func (CategoryExtracted) Kind() EnrichmentKind       { return KindExtractCategory }
func (QuestionAnswered) Kind() EnrichmentKind        { return KindAnswerQuestion }
func (CategoriesFetched) Kind() EnrichmentKind       { return KindFetchCategories }
func (ProductsFetched) Kind() EnrichmentKind         { return KindFetchProducts }
func (BacklogApologyGenerated) Kind() EnrichmentKind { return KindGenerateBacklogApology }

func (EligibilityChecked) isResult()      {}
func (QuestionDetected) isResult()        {}
func (EscalationDecided) isResult()       {}
func (CategoryExtracted) isResult()       {}
func (QuestionAnswered) isResult()        {}
func (CategoriesFetched) isResult()       {}
func (ProductsFetched) isResult()         {}
func (BacklogApologyGenerated) isResult() {}

// DefaultResult is the safe answer used when a handler fails, panics or is
// missing. Eligibility failures park the customer instead of rejecting them.
func DefaultResult(req EnrichmentRequest) EnrichmentResult {
	switch r := req.(type) {
	case CheckEligibilityRequest:
		return EligibilityChecked{DNI: r.DNI, Result: eligibility.NeedsHuman(eligibility.HandoffBothProvidersDown)}
	case DetectQuestionRequest:
		return QuestionDetected{IsQuestion: false}
	case ShouldEscalateRequest:
		return EscalationDecided{ShouldEscalate: false}
	case ExtractCategoryRequest:
		return CategoryExtracted{}
	case AnswerQuestionRequest:
		return QuestionAnswered{}
	case FetchCategoriesRequest:
		return CategoriesFetched{}
	case FetchProductsRequest:
		return ProductsFetched{Category: r.Category}
	case GenerateBacklogApologyRequest:
		return BacklogApologyGenerated{}
	default:
		return nil
	}
}
