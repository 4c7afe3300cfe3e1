package mail

import (
	"bytes"
	"html/template"
	"time"
)

var receiptTmpl = template.Must(template.New("receipt").Parse(`<p>Hi {{.Name}},</p>
<p>thanks for your purchase of <strong>{{.CourseTitle}}</strong>.</p>
<table>
<tr><td>Amount</td><td>{{.Amount}} {{.Currency}}</td></tr>
<tr><td>Transaction</td><td>{{.TransactionID}}</td></tr>
<tr><td>Date</td><td>{{.PaidAt.Format "2006-01-02 15:04 MST"}}</td></tr>
</table>
{{if .ReceiptURL}}<p><a href="{{.ReceiptURL}}">View your receipt</a></p>{{end}}`))

var enrollmentTmpl = template.Must(template.New("enrollment").Parse(`<p>Hi {{.Name}},</p>
<p>you are now enrolled in <strong>{{.CourseTitle}}</strong>.</p>
{{if .CourseURL}}<p><a href="{{.CourseURL}}">Start learning</a></p>{{end}}`))

// Receipt is the data rendered into a payment receipt.
type Receipt struct {
	Name          string
	CourseTitle   string
	Amount        string
	Currency      string
	TransactionID string
	ReceiptURL    string
	PaidAt        time.Time
}

type EnrollmentConfirmation struct {
	Name        string
	CourseTitle string
	CourseURL   string
}

// RenderReceipt returns subject and HTML body of a payment receipt.
func RenderReceipt(r Receipt) (string, string, error) {
	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, r); err != nil {
		return "", "", err
	}
	return "Your receipt for " + r.CourseTitle, buf.String(), nil
}

func RenderEnrollmentConfirmation(c EnrollmentConfirmation) (string, string, error) {
	var buf bytes.Buffer
	if err := enrollmentTmpl.Execute(&buf, c); err != nil {
		return "", "", err
	}
	return "Welcome to " + c.CourseTitle, buf.String(), nil
}
