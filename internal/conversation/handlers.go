package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/creditsales-ai-platform/internal/catalog"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
)

// EligibilityChecker resolves a customer's credit line.
type EligibilityChecker interface {
	Check(ctx context.Context, dni, customerKey string) eligibility.Result
}

// EligibilityHandler answers CheckEligibilityRequest.
func EligibilityHandler(checker EligibilityChecker) Handler {
	return HandlerFunc(func(ctx context.Context, customerKey string, req EnrichmentRequest) (EnrichmentResult, error) {
		r, ok := req.(CheckEligibilityRequest)
		if !ok {
			return nil, fmt.Errorf("conversation: eligibility handler got %T", req)
		}
		return EligibilityChecked{DNI: r.DNI, Result: checker.Check(ctx, r.DNI, customerKey)}, nil
	})
}

// CatalogHandler answers FetchCategoriesRequest and FetchProductsRequest.
func CatalogHandler(store catalog.Store) Handler {
	return HandlerFunc(func(ctx context.Context, _ string, req EnrichmentRequest) (EnrichmentResult, error) {
		switch r := req.(type) {
		case FetchCategoriesRequest:
			categories, err := store.Categories(ctx, r.Segment)
			if err != nil {
				return nil, fmt.Errorf("conversation: fetch categories: %w", err)
			}
			return CategoriesFetched{Categories: categories}, nil
		case FetchProductsRequest:
			products, err := store.Products(ctx, r.Segment, r.Category)
			if err != nil {
				return nil, fmt.Errorf("conversation: fetch products: %w", err)
			}
			return ProductsFetched{Category: r.Category, Products: products}, nil
		default:
			return nil, fmt.Errorf("conversation: catalog handler got %T", req)
		}
	})
}

// NewHandlerSet wires every enrichment kind. advisor may be nil, in which
// case the language kinds fall back to their defaults.
func NewHandlerSet(checker EligibilityChecker, store catalog.Store, advisor *Advisor) HandlerSet {
	set := HandlerSet{}
	if checker != nil {
		set[KindCheckEligibility] = EligibilityHandler(checker)
	}
	if store != nil {
		h := CatalogHandler(store)
		set[KindFetchCategories] = h
		set[KindFetchProducts] = h
	}
	if advisor != nil {
		for _, kind := range []EnrichmentKind{
			KindDetectQuestion, KindShouldEscalate, KindExtractCategory,
			KindAnswerQuestion, KindGenerateBacklogApology,
		} {
			set[kind] = advisor
		}
	}
	return set
}
