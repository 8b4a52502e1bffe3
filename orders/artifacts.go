package orders

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"

	"vitrine/globals"
	"vitrine/models"
	"vitrine/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

// receiptQRPayload signs the receipt identity so a scanned QR can be verified
// against tampering: orderNumber|orderId|signature.
func receiptQRPayload(order *models.Order) string {
	data := fmt.Sprintf("%s|%s", order.OrderNumber, order.ID)
	h := hmac.New(sha256.New, globals.ReceiptSecret)
	h.Write([]byte(data))
	sig := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%s|%s", data, sig)
}

// PixPngHandler renders the payment's PIX copy-paste payload as a scannable
// PNG for the storefront's payment screen.
func PixPngHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	payment, _, err := paymentForUser(r.Context(), ps.ByName("paymentid"), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Payment not found")
		return
	}
	if payment.PixCopyPaste == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Payment has no PIX payload")
		return
	}

	png, err := qrcode.Encode(payment.PixCopyPaste, qrcode.Medium, 256)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// ReceiptHandler produces a PDF receipt for a paid order, with a signed QR
// code for verification at pickup.
func ReceiptHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	order, err := ownedOrder(r.Context(), ps.ByName("orderid"), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	if order.PaymentStatus != models.OrderPaymentPaid {
		utils.RespondWithError(w, http.StatusConflict, "Order is not paid yet")
		return
	}

	qrPNG, err := qrcode.Encode(receiptQRPayload(order), qrcode.Medium, 256)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Order Receipt")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 10, fmt.Sprintf("Order: %s", order.OrderNumber))
	pdf.Ln(8)
	pdf.Cell(0, 10, fmt.Sprintf("Date: %s", order.CreatedAt.Format("2006-01-02 15:04")))
	pdf.Ln(12)

	for _, item := range order.Items {
		pdf.Cell(0, 8, fmt.Sprintf("%dx %s - %.2f", item.Quantity, item.Name, item.LineTotal))
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.Cell(0, 8, fmt.Sprintf("Subtotal: %.2f", order.Subtotal))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Shipping: %.2f", order.ShippingCost))
	pdf.Ln(6)
	if order.Discount > 0 {
		pdf.Cell(0, 8, fmt.Sprintf("Discount: -%.2f", order.Discount))
		pdf.Ln(6)
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 10, fmt.Sprintf("Total: %.2f", order.Total))

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 40, 40, 40, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate PDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=receipt-"+order.OrderNumber+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
