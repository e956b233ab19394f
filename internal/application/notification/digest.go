package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// Section lists the companies that reached one threshold.
type Section struct {
	Threshold int            `json:"threshold"`
	Rows      []tracking.Row `json:"rows"`
}

// Title is the Turkish heading of the section.
func (s Section) Title() string {
	switch s.Threshold {
	case 0:
		return "Bugün son gün"
	case 1:
		return "Yarın son gün"
	}
	return fmt.Sprintf("Son güne %d gün kaldı", s.Threshold)
}

// Digest is one reminder mail.
type Digest struct {
	Date     time.Time `json:"date"`
	Sections []Section `json:"sections"`
}

// Total is the number of rows over all sections.
func (d *Digest) Total() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Rows)
	}
	return n
}

func digestFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": tracking.FormatDate,
		"status":     tracking.StatusLabel,
		"regime":     tracking.RegimeLabel,
		"cadence":    tracking.CadenceLabel,
		"statusColor": func(s deadline.Status) string {
			return statusColors[s]
		},
	}
}

var statusColors = map[deadline.Status]string{
	deadline.StatusOverdue: "#c62828",
	deadline.StatusDueSoon: "#ef6c00",
	deadline.StatusPending: "#2e7d32",
}

const digestHTML = `<!DOCTYPE html>
<html lang="tr">
<head><meta charset="utf-8"><title>e-Defter hatırlatması</title></head>
<body style="font-family: Arial, sans-serif; font-size: 14px;">
<h2>e-Defter yükleme hatırlatması ({{formatDate .Date}})</h2>
{{- range .Sections}}
<h3>{{.Title}}</h3>
<table cellpadding="6" cellspacing="0" border="1" style="border-collapse: collapse;">
<tr style="background: #eeeeee;"><th>Firma</th><th>VKN/TCKN</th><th>Vergi türü</th><th>Dönem</th><th>Son gün</th><th>Kalan gün</th><th>Durum</th></tr>
{{- range .Rows}}
<tr>
<td>{{.CompanyName}}</td>
<td>{{.CompanyKey}}</td>
<td>{{regime .Regime}} / {{cadence .Cadence}}</td>
<td>{{.PeriodLabel}}</td>
<td>{{formatDate .DeadlineDate}}</td>
<td style="text-align: right;">{{.RemainingDays}}</td>
<td style="color: {{statusColor .Status}};">{{status .Status}}</td>
</tr>
{{- end}}
</table>
{{- end}}
<p style="color: #777777;">Bu e-posta e-Defter takip servisi tarafından otomatik gönderilmiştir.</p>
</body>
</html>
`

var digestTemplate = template.Must(template.New("digest").Funcs(digestFuncs()).Parse(digestHTML))

// RenderDigest renders d as an HTML document.
func RenderDigest(d *Digest) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, d); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeNotificationRenderFailed, "digest template execution failed")
	}
	return buf.String(), nil
}
