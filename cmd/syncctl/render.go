package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"SyncGuard/internal/biz"
	"SyncGuard/internal/data"
	"SyncGuard/internal/model"
	"SyncGuard/internal/service"

	"github.com/jedib0t/go-pretty/v6/table"
)

const timeLayout = "2006-01-02 15:04:05"

// printer renders replies as go-pretty tables or as indented JSON.
type printer struct {
	out  io.Writer
	json bool
}

func newPrinter(out io.Writer, asJSON bool) *printer {
	return &printer{out: out, json: asJSON}
}

func (p *printer) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func (p *printer) writeJSON(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) line(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

func formatSeconds(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10) + "s"
}

func (p *printer) health(hs *biz.HealthStatus) error {
	if p.json {
		return p.writeJSON(hs)
	}

	t := p.newTable("Sync health " + hs.Date)
	t.AppendRow(table.Row{"Status", strings.ToUpper(hs.Status)})
	if m := hs.Metrics; m != nil {
		t.AppendRow(table.Row{"Tenants", m.TotalTenants})
		t.AppendRow(table.Row{"Succeeded", m.TotalSuccess})
		t.AppendRow(table.Row{"Failed", m.FailedTenants})
		t.AppendRow(table.Row{"Success rate", fmt.Sprintf("%.2f%%", m.SuccessRate)})
		t.AppendRow(table.Row{"Avg duration", fmt.Sprintf("%.2fs", m.AvgDuration)})
		t.AppendRow(table.Row{"Total duration", fmt.Sprintf("%.2fs", m.TotalDuration)})
	}
	t.Render()

	if hs.Status == biz.HealthUnknown {
		p.line("No run statistics stored for %s.", hs.Date)
	}
	if len(hs.Recommendations) > 0 {
		p.line("Recommended actions:")
		for _, r := range hs.Recommendations {
			p.line("  - %s", r)
		}
	}
	return nil
}

func (p *printer) services(names []string) error {
	if p.json {
		return p.writeJSON(map[string][]string{"services": names})
	}
	t := p.newTable("")
	t.AppendHeader(table.Row{"Service"})
	for _, n := range names {
		t.AppendRow(table.Row{n})
	}
	t.Render()
	return nil
}

func (p *printer) stats(s *service.ServiceStats) error {
	if p.json {
		return p.writeJSON(s)
	}

	cb := s.Circuit
	t := p.newTable("Circuit breaker " + s.Service + " (" + s.Scope + ")")
	t.AppendRow(table.Row{"Enabled", cb.Enabled})
	t.AppendRow(table.Row{"State", cb.State})
	t.AppendRow(table.Row{"Failures", fmt.Sprintf("%d / %d", cb.FailureCount, cb.FailureThreshold)})
	t.AppendRow(table.Row{"Successes", fmt.Sprintf("%d / %d", cb.SuccessCount, cb.SuccessThreshold)})
	t.AppendRow(table.Row{"Timeout", fmt.Sprintf("%ds", cb.TimeoutSeconds)})
	t.AppendRow(table.Row{"Opened at", formatTime(cb.OpenedAt)})
	t.AppendRow(table.Row{"Elapsed", formatSeconds(cb.ElapsedSeconds)})
	t.AppendRow(table.Row{"Remaining", formatSeconds(cb.RemainingSeconds)})
	t.Render()

	rl := s.RateLimit
	t = p.newTable("Rate limiter " + s.Service + " (" + s.Scope + ")")
	t.AppendRow(table.Row{"Used", fmt.Sprintf("%d / %d", rl.Used, rl.Limit)})
	t.AppendRow(table.Row{"Remaining", rl.Remaining})
	t.AppendRow(table.Row{"Usage", fmt.Sprintf("%.2f%%", rl.UsagePercentage)})
	t.AppendRow(table.Row{"Window", fmt.Sprintf("%ds", rl.WindowSeconds)})
	t.Render()
	return nil
}

func (p *printer) reset(r *service.ResetReply) error {
	if p.json {
		return p.writeJSON(r)
	}
	for _, s := range r.Services {
		p.line("Circuit breaker reset: %s (%s)", s, r.Scope)
	}
	return nil
}

func (p *printer) probe(r *service.ProbeReply) error {
	if p.json {
		return p.writeJSON(r)
	}
	if r.Skipped {
		p.line("%s (%s) is %s, nothing to probe.", r.Service, r.Scope, r.State)
		return nil
	}

	t := p.newTable("Probe " + r.Service + " (" + r.Scope + ")")
	t.AppendRow(table.Row{"State", r.State})
	if res := r.Result; res != nil {
		t.AppendRow(table.Row{"URL", res.URL})
		t.AppendRow(table.Row{"Status code", res.StatusCode})
		t.AppendRow(table.Row{"Latency", res.Latency.Round(time.Millisecond).String()})
		t.AppendRow(table.Row{"Reachable", res.Reachable})
	}
	if r.Error != "" {
		t.AppendRow(table.Row{"Error", r.Error})
	}
	t.AppendRow(table.Row{"Reset", r.Reset})
	t.Render()
	return nil
}

func (p *printer) failed(failed []biz.FailedTenant) error {
	if p.json {
		return p.writeJSON(map[string]interface{}{"count": len(failed), "tenants": failed})
	}
	if len(failed) == 0 {
		p.line("No failed tenants.")
		return nil
	}
	t := p.newTable(fmt.Sprintf("Failed tenants (%d)", len(failed)))
	t.AppendHeader(table.Row{"Tenant", "Last attempt"})
	for _, f := range failed {
		t.AppendRow(table.Row{f.TenantID, formatTime(f.LastAttempt)})
	}
	t.Render()
	return nil
}

func (p *printer) trends(points []biz.TrendPoint) error {
	if p.json {
		return p.writeJSON(map[string]interface{}{"trends": points})
	}
	t := p.newTable("")
	t.AppendHeader(table.Row{"Date", "Tenants", "Failed", "Success rate", "Avg duration"})
	for _, tp := range points {
		t.AppendRow(table.Row{tp.Date, tp.TotalTenants, tp.FailedTenants,
			fmt.Sprintf("%.2f%%", tp.SuccessRate), fmt.Sprintf("%.2fs", tp.AvgDuration)})
	}
	t.Render()
	return nil
}

func (p *printer) batches(batches []*data.BatchStats) error {
	if p.json {
		return p.writeJSON(map[string]interface{}{"batches": batches})
	}
	if len(batches) == 0 {
		p.line("No batch records.")
		return nil
	}
	t := p.newTable("")
	t.AppendHeader(table.Row{"Batch", "Tenants", "Success", "Errors", "Started", "Duration"})
	for _, b := range batches {
		t.AppendRow(table.Row{b.BatchNumber, b.TenantCount, b.SuccessCount, b.ErrorCount,
			formatTime(&b.StartedAt), fmt.Sprintf("%.2fs", b.DurationSeconds)})
	}
	t.Render()
	return nil
}

func (p *printer) runningInfo(info *data.RunningInfo) {
	t := p.newTable("Run " + info.RunID)
	t.AppendRow(table.Row{"Started", formatTime(&info.StartedAt)})
	t.AppendRow(table.Row{"Batch", fmt.Sprintf("%d / %d", info.CurrentBatch, info.TotalBatches)})
	t.AppendRow(table.Row{"Tenants", info.TotalTenants})
	t.AppendRow(table.Row{"Progress", fmt.Sprintf("%.2f%%", info.ProgressPercentage)})
	t.Render()
}

func (p *printer) running(r *service.RunningReply) error {
	if p.json {
		return p.writeJSON(r)
	}
	if !r.Running || r.Info == nil {
		p.line("No sync is running.")
		return nil
	}
	p.runningInfo(r.Info)
	return nil
}

func (p *printer) dashboard(d *biz.Dashboard) error {
	if p.json {
		return p.writeJSON(d)
	}
	if err := p.health(d.Health); err != nil {
		return err
	}
	if d.Running != nil {
		p.runningInfo(d.Running)
	}
	p.line("Failed tenants: %d", d.FailedTenants)

	if len(d.Integrations) > 0 {
		t := p.newTable("Integrations")
		t.AppendHeader(table.Row{"Source", "Synced", "Failed", "Success rate", "Avg quality"})
		for _, ih := range d.Integrations {
			t.AppendRow(table.Row{ih.DataSource, ih.Synced, ih.Failed,
				fmt.Sprintf("%.2f%%", ih.SuccessRate), fmt.Sprintf("%.2f", ih.AvgQualityScore)})
		}
		t.Render()
	}
	if len(d.Trends) > 0 {
		return p.trends(d.Trends)
	}
	return nil
}

func (p *printer) sync(r *service.SyncReply) error {
	if p.json {
		return p.writeJSON(r)
	}
	if o := r.Overall; o != nil && o.TotalTenants > 0 {
		t := p.newTable("Sync " + r.Date)
		t.AppendRow(table.Row{"Tenants", o.TotalTenants})
		t.AppendRow(table.Row{"Succeeded", o.TotalSuccess})
		t.AppendRow(table.Row{"Failed", o.TotalFailed})
		t.AppendRow(table.Row{"Batches", fmt.Sprintf("%d / %d", o.ProcessedBatches, o.TotalBatches)})
		t.AppendRow(table.Row{"Duration", fmt.Sprintf("%.2fs", o.DurationSeconds)})
		t.Render()
	} else if r.Tenant == nil {
		p.line("No active tenants to sync for %s.", r.Date)
	}

	if tr := r.Tenant; tr != nil {
		t := p.newTable(fmt.Sprintf("Sync %s tenant %d", r.Date, tr.TenantID))
		t.AppendHeader(table.Row{"Service", "Success", "Synced", "Failed", "Errors"})
		for _, s := range tr.Services {
			t.AppendRow(table.Row{s.Service, s.Success, s.SyncedCount, s.FailedCount, strings.Join(s.Errors, "; ")})
		}
		t.Render()
	}
	if r.Error != "" {
		p.line("Error: %s", r.Error)
	}
	return nil
}

func (p *printer) audit(events []model.AuditEntry) error {
	if p.json {
		return p.writeJSON(map[string]interface{}{"events": events})
	}
	if len(events) == 0 {
		p.line("No audit entries.")
		return nil
	}
	t := p.newTable("")
	t.AppendHeader(table.Row{"Time", "Scope", "Action", "Operator", "Details"})
	for _, e := range events {
		created := e.CreatedAt
		t.AppendRow(table.Row{formatTime(&created), e.Scope, e.Action, e.Operator, e.Details})
	}
	t.Render()
	return nil
}
