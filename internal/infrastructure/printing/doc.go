// Package printing turns contracts and receipts into PDF documents.
//
// Templates are rendered with html/template into HTML, and the HTML is
// printed by a headless Chrome through chromedp:
//
//	pdf, err := printing.NewChromedpRenderer(&printing.ChromedpConfig{NoSandbox: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pdf.Close()
//	docs := printing.NewDocumentRenderer(printing.NewTemplateEngine(), pdf)
//	out, err := docs.Render(ctx, document.KindReceipt, receiptData)
package printing
