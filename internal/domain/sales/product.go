package sales

import (
	"fmt"

	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
)

// buildProduct derives the display view of one sold line.
// Supplier type is read per line since a fetch may mix kinds.
func buildProduct(inv *MergedInvoice, line Record, watches WatchDetails) ProductDetail {
	tag := lineSupplierTag(line)
	kind := ParseSupplierType(tag)
	dp := line.Get("DistributionPurchase")

	p := ProductDetail{
		Code:         line.String(keyInvoiceID),
		SupplierType: tag,
		Gift:         inv.Fields.Bool(keyGift),
		ExternalCode: line.FirstString("CODE_EXTERNAL", "code_external", "ref", "reference"),
	}

	if kind == SupplierWatch {
		p.Design = watchDesign(inv.Fields.String(keyPicint), line, dp, watches)
	} else {
		p.Design = line.FirstString("Design_art", "design")
	}
	if TracksWeight(kind) {
		p.Weight = line.String("qty")
	}

	purchase := purchaseRecord(dp)
	p.PurchaseID = stringify(firstTruthy(
		purchase.Get("id_achat"), line.Get("id_achat"), line.Get("ID_ACHAT"), line.Get(keyPicint),
	))

	p.Picint = line.String(keyPicint)
	if p.Picint == "" {
		p.Picint = inv.Fields.String(keyPicint)
	}
	p.ImageID = imageID(kind, line, purchase, p.PurchaseID, p.Picint, inv.Fields.String(keyPicint))

	candidates := append(LinePrice.Values(line), PurchasePrice.Values(purchase)...)
	for _, c := range candidates {
		if d, ok := valueobject.Normalize(c); ok {
			p.PriceCandidates = append(p.PriceCandidates, d)
		}
	}
	if len(p.PriceCandidates) > 0 {
		price := p.PriceCandidates[0]
		p.UnitPrice = &price
	}
	return p
}

// watchRecord finds the OriginalAchatWatch attached to a line
func watchRecord(line Record, dp any) Record {
	var w Record
	switch x := dp.(type) {
	case []any:
		if len(x) > 0 {
			w = asRecord(x[0]).Record("OriginalAchatWatch")
		}
	case []Record:
		if len(x) > 0 {
			w = x[0].Record("OriginalAchatWatch")
		}
	default:
		w = asRecord(dp).Record("OriginalAchatWatch")
	}
	if w == nil {
		w = line.Record("OriginalAchatWatch")
	}
	return w
}

// watchDesign renders "model | SN: serial". It never falls back to Design_art.
func watchDesign(invoicePicint string, line Record, dp any, watches WatchDetails) string {
	w := watchRecord(line, dp)
	var detail WatchDetail
	if invoicePicint != "" {
		detail, _ = watches.Lookup(invoicePicint)
	}

	model := stringify(firstTruthy(
		nonEmpty(detail.Model), w.Get("model"), w.Get("Model"), line.Get("Model"), line.Get("model"),
	))
	serial := stringify(firstTruthy(
		nonEmpty(detail.SerialNumber), w.Get("serial_number"), line.Get("serial_number"),
	))
	if serial != "" {
		return fmt.Sprintf("%s | SN: %s", model, serial)
	}
	return model
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// purchaseRecord resolves the purchase behind a DistributionPurchase value,
// which the backend sends either as a list or as a single object.
func purchaseRecord(dp any) Record {
	switch x := dp.(type) {
	case []any:
		if len(x) == 0 {
			return nil
		}
		first := asRecord(x[0])
		if p := first.Record("purchase"); p != nil {
			return p
		}
		return first
	case []Record:
		if len(x) == 0 {
			return nil
		}
		if p := x[0].Record("purchase"); p != nil {
			return p
		}
		return x[0]
	}
	obj := asRecord(dp)
	if obj == nil {
		return nil
	}
	for _, k := range []string{"purchase", "purchaseW", "purchaseD"} {
		if p := obj.Record(k); p != nil {
			return p
		}
	}
	return obj
}

func imageID(kind SupplierType, line, purchase Record, purchaseID, picint, rowPicint string) string {
	var v any
	switch kind {
	case SupplierGold:
		v = firstTruthy(
			purchase.Get("id_art"), line.Get("id_art"), line.Get("ID_ART"), line.Get("Id_Art"),
			nonEmpty(purchaseID), nonEmpty(picint),
		)
	case SupplierWatch:
		v = firstTruthy(purchase.Get("id_achat"), nonEmpty(purchaseID), nonEmpty(picint), nonEmpty(rowPicint))
	default:
		v = firstTruthy(nonEmpty(picint), nonEmpty(purchaseID), nonEmpty(rowPicint))
	}
	return stringify(v)
}
