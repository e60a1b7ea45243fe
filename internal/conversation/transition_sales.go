package conversation

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/wolfman30/creditsales-ai-platform/internal/catalog"
	"github.com/wolfman30/creditsales-ai-platform/internal/events"
)

// offeringProducts handles pending enrichment results first, then the
// cheap keyword rules, and only then asks for a question classification.
func (e *Engine) offeringProducts(p OfferingProducts, raw, msg string, enrichment EnrichmentResult) TransitionResult {
	if enrichment != nil {
		return e.offeringEnrichment(p, raw, enrichment)
	}

	if isPriceObjection(msg) {
		if p.Objections > 0 {
			r := e.repeatObjection(p.objecting())
			if u, ok := r.(Update); ok {
				return Advance{Next: u.Next, Commands: u.Commands}
			}
			return r
		}
		return Advance{
			Next: HandlingObjection{
				Segment: p.Segment, Credit: p.Credit, Name: p.Name,
				Category: p.Category, ShownProducts: p.ShownProducts, Objections: 1,
			},
			Commands: []Command{
				track("objection", map[string]string{"type": "price"}),
				text(TplObjectionPrice, map[string]string{"credit": formatAmount(p.Credit)}),
			},
		}
	}
	if isRejection(msg) {
		return Advance{
			Next: Closing{Reason: ReasonRejected},
			Commands: []Command{
				track("offer_rejected", nil),
				text(TplRejectionGoodbye, map[string]string{"name": firstName(p.Name)}),
			},
		}
	}

	category, hasCategory := matchCategory(msg)
	if isPurchase(msg) {
		product, ok := resolveProduct(msg, p.ShownProducts)
		if !ok && len(p.ShownProducts) == 1 && !hasCategory {
			product, ok = p.ShownProducts[0], true
		}
		if ok {
			return e.confirmPurchase(p, product)
		}
		if !hasCategory && len(p.ShownProducts) > 0 {
			return Stay{Commands: []Command{text(TplWhichProduct, nil)}}
		}
	}
	if hasCategory {
		return NeedEnrichment{Request: FetchProductsRequest{Segment: p.Segment, Category: category}}
	}
	if product, ok := resolveProduct(msg, p.ShownProducts); ok {
		return Stay{Commands: []Command{
			productImage(product),
			text(TplConfirmProduct, map[string]string{"product": product.Name, "price": formatAmount(product.Price)}),
		}}
	}
	if isCatalogRequest(msg) || isNewPurchase(msg) {
		return NeedEnrichment{Request: FetchCategoriesRequest{Segment: p.Segment}}
	}
	return NeedEnrichment{Request: DetectQuestionRequest{Message: raw}}
}

func (e *Engine) offeringEnrichment(p OfferingProducts, raw string, enrichment EnrichmentResult) TransitionResult {
	switch r := enrichment.(type) {
	case QuestionDetected:
		if r.IsQuestion {
			return NeedEnrichment{Request: AnswerQuestionRequest{
				Message:  raw,
				Segment:  p.Segment,
				Category: p.Category,
				Products: productNames(p.ShownProducts),
			}}
		}
		return NeedEnrichment{Request: ShouldEscalateRequest{Message: raw}}

	case QuestionAnswered:
		if strings.TrimSpace(r.Answer) == "" {
			return Stay{Commands: []Command{text(TplFallbackHelp, nil)}}
		}
		return Stay{Commands: []Command{SendText{Text: r.Answer}}}

	case EscalationDecided:
		if r.ShouldEscalate {
			reason := r.Reason
			if reason == "" {
				reason = ReasonCustomerRequest
			}
			return Escalate{
				Reason:   reason,
				Next:     Escalated{Reason: reason},
				Commands: []Command{text(TplHandoff, nil), EscalateHandoff{Reason: reason}},
			}
		}
		return NeedEnrichment{Request: ExtractCategoryRequest{Message: raw, Segment: p.Segment}}

	case CategoryExtracted:
		if category := catalog.NormalizeCategory(r.Category); category != "" {
			return NeedEnrichment{Request: FetchProductsRequest{Segment: p.Segment, Category: category}}
		}
		return NeedEnrichment{Request: FetchCategoriesRequest{Segment: p.Segment}}

	case CategoriesFetched:
		if len(r.Categories) == 0 {
			return Stay{Commands: []Command{text(TplFallbackHelp, nil)}}
		}
		return Stay{Commands: []Command{
			text(TplCategoryMenu, map[string]string{"categories": strings.Join(r.Categories, ", ")}),
		}}

	case ProductsFetched:
		next, cmds := e.showProducts(p, r)
		return Update{Next: next, Commands: cmds}

	default:
		return Stay{}
	}
}

// showProducts lists what the customer can afford in the fetched category.
func (e *Engine) showProducts(p OfferingProducts, r ProductsFetched) (OfferingProducts, []Command) {
	category := catalog.NormalizeCategory(r.Category)
	products := catalog.Affordable(r.Products, p.Credit, e.cfg.ProductsPerPage)
	next := p
	next.Category = category
	next.ShownProducts = products
	if len(products) == 0 {
		next.ShownProducts = nil
		return next, []Command{
			text(TplNoProducts, map[string]string{"category": category, "credit": formatAmount(p.Credit)}),
		}
	}
	cmds := []Command{
		track("products_shown", map[string]string{"category": category}),
		text(TplProductsIntro, map[string]string{"category": category, "credit": formatAmount(p.Credit)}),
	}
	for _, product := range products {
		cmds = append(cmds, productImage(product))
	}
	return next, cmds
}

func (e *Engine) confirmPurchase(p OfferingProducts, product catalog.Product) TransitionResult {
	return Advance{
		Next: Closing{PurchaseConfirmed: true, Reason: ReasonPurchase, Product: product.Name},
		Commands: []Command{
			track("purchase_confirmed", map[string]string{"product_id": product.ID, "category": product.Category}),
			text(TplPurchaseConfirmed, map[string]string{
				"name":    firstName(p.Name),
				"product": product.Name,
				"price":   formatAmount(product.Price),
			}),
			NotifyTeam{Reason: ReasonPurchase, Severity: events.SeverityInfo},
		},
	}
}

func (e *Engine) handlingObjection(p HandlingObjection, raw, msg string, enrichment EnrichmentResult) TransitionResult {
	base := OfferingProducts{
		Segment: p.Segment, Credit: p.Credit, Name: p.Name,
		Category: p.Category, ShownProducts: p.ShownProducts, Objections: p.Objections,
	}
	if enrichment != nil {
		return backToOffering(base, e.offeringEnrichment(base, raw, enrichment))
	}

	if isPriceObjection(msg) {
		return e.repeatObjection(p)
	}

	if isAffirmative(msg) && !isPurchase(msg) {
		if p.Category != "" {
			return NeedEnrichment{
				Request:      FetchProductsRequest{Segment: p.Segment, Category: p.Category},
				PendingPhase: base,
			}
		}
		return NeedEnrichment{Request: FetchCategoriesRequest{Segment: p.Segment}, PendingPhase: base}
	}
	return backToOffering(base, e.offeringProducts(base, raw, msg, nil))
}

// repeatObjection answers a further price objection with the cheapest shown
// product, or escalates once the count passes the cap.
func (e *Engine) repeatObjection(p HandlingObjection) TransitionResult {
	count := p.Objections + 1
	if count > e.cfg.MaxObjections {
		return Escalate{
			Reason: ReasonMultipleObjections,
			Next:   Escalated{Reason: ReasonMultipleObjections},
			Commands: []Command{
				track("objection_escalated", nil),
				text(TplHandoff, nil),
				EscalateHandoff{Reason: ReasonMultipleObjections},
			},
		}
	}
	next := p
	next.Objections = count
	cmds := []Command{track("objection", map[string]string{"type": "repeat"})}
	if cheapest, ok := cheapestProduct(p.ShownProducts); ok {
		cmds = append(cmds,
			text(TplObjectionAlternative, map[string]string{
				"product": cheapest.Name,
				"price":   formatAmount(cheapest.Price),
				"credit":  formatAmount(p.Credit),
			}),
			productImage(cheapest),
		)
	} else {
		cmds = append(cmds, text(TplObjectionAlternative, map[string]string{"credit": formatAmount(p.Credit)}))
	}
	return Update{Next: next, Commands: cmds}
}

func (p OfferingProducts) objecting() HandlingObjection {
	return HandlingObjection{
		Segment: p.Segment, Credit: p.Credit, Name: p.Name,
		Category: p.Category, ShownProducts: p.ShownProducts, Objections: p.Objections,
	}
}

// backToOffering turns a result computed for the offering phase into one that
// leaves the objection phase.
func backToOffering(base OfferingProducts, r TransitionResult) TransitionResult {
	switch v := r.(type) {
	case Stay:
		return Advance{Next: base, Commands: v.Commands}
	case Update:
		return Advance{Next: v.Next, Commands: v.Commands}
	case NeedEnrichment:
		if v.PendingPhase == nil {
			v.PendingPhase = base
		}
		return v
	default:
		return r
	}
}

func (e *Engine) closing(p Closing, raw, msg string, meta Metadata, enrichment EnrichmentResult) TransitionResult {
	switch r := enrichment.(type) {
	case nil:
	case QuestionDetected:
		if r.IsQuestion {
			return NeedEnrichment{Request: AnswerQuestionRequest{Message: raw, Segment: meta.Segment}}
		}
		return Stay{}
	case QuestionAnswered:
		if strings.TrimSpace(r.Answer) == "" {
			return Stay{}
		}
		return Stay{Commands: []Command{SendText{Text: r.Answer}}}
	default:
		return Stay{}
	}

	if reopenable(p, meta) {
		category, hasCategory := matchCategory(msg)
		if hasCategory || isNewPurchase(msg) || isPurchase(msg) {
			base := OfferingProducts{Segment: meta.Segment, Credit: meta.Credit, Name: meta.Name}
			if hasCategory {
				return NeedEnrichment{
					Request:      FetchProductsRequest{Segment: meta.Segment, Category: category},
					PendingPhase: base,
					Commands:     []Command{track("conversation_reopened", nil)},
				}
			}
			return Advance{
				Next: base,
				Commands: []Command{
					track("conversation_reopened", nil),
					text(TplOfferAgain, map[string]string{"name": firstName(meta.Name), "credit": formatAmount(meta.Credit)}),
				},
			}
		}
	}
	if isAck(msg) || len([]rune(msg)) < e.cfg.MinDNIMessageLength {
		return Stay{}
	}
	return NeedEnrichment{Request: DetectQuestionRequest{Message: raw}}
}

// reopenable reports whether a closed conversation may go back to offering.
func reopenable(p Closing, meta Metadata) bool {
	if !meta.Approved() {
		return false
	}
	switch p.Reason {
	case ReasonAgePolicy, ReasonNotEligible, ReasonNotClient:
		return false
	}
	return true
}

// resolveProduct finds the shown product msg refers to, by position or brand.
func resolveProduct(msg string, shown []catalog.Product) (catalog.Product, bool) {
	if len(shown) == 0 {
		return catalog.Product{}, false
	}
	for i, re := range ordinalPatterns {
		if i < len(shown) && re.MatchString(msg) {
			return shown[i], true
		}
	}
	if lastPattern.MatchString(msg) {
		return shown[len(shown)-1], true
	}
	tokens := words(msg)
	for _, product := range shown {
		if containsPhrase(tokens, words(normalize(product.Name))) {
			return product, true
		}
	}
	for _, product := range shown {
		if containsPhrase(tokens, words(normalize(product.Brand))) {
			return product, true
		}
	}
	return catalog.Product{}, false
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j := range phrase {
			if tokens[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func cheapestProduct(products []catalog.Product) (catalog.Product, bool) {
	if len(products) == 0 {
		return catalog.Product{}, false
	}
	best := products[0]
	for _, p := range products[1:] {
		if p.Price < best.Price {
			best = p
		}
	}
	return best, true
}

func productNames(products []catalog.Product) []string {
	if len(products) == 0 {
		return nil
	}
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}
	return names
}

func productImage(p catalog.Product) SendImage {
	caption := strings.TrimSpace(p.Brand + " " + p.Name)
	return SendImage{Path: p.ImagePath, Caption: fmt.Sprintf("%s - S/ %s", caption, formatAmount(p.Price))}
}

// formatAmount renders soles without decimals when the amount is whole.
func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	name := []rune(strings.ToLower(fields[0]))
	name[0] = unicode.ToUpper(name[0])
	return string(name)
}
