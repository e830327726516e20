// Package export renders shift schedules as spreadsheets.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/service/audit"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

const (
	SheetName   = "Shifts"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var Columns = []string{
	"Staff Name", "Role", "Department", "Date", "Start Time", "End Time", "Shift Type", "Status", "Notes",
}

type Service struct {
	bookings  repository.BookingRepository
	directory repository.DirectoryRepository
	auditor   *audit.Service
}

func NewService(bookings repository.BookingRepository, directory repository.DirectoryRepository, auditor *audit.Service) *Service {
	if auditor == nil {
		auditor = audit.NewService(nil)
	}
	return &Service{bookings: bookings, directory: directory, auditor: auditor}
}

// FileName is the attachment name for a range export.
func FileName(start, end schedule.Date) string {
	return fmt.Sprintf("shifts_%s_%s.xlsx", start, end)
}

// WriteShifts writes every shift dated within [start, end] to w, ordered by date,
// start time and staff name. It returns the number of data rows.
func (s *Service) WriteShifts(ctx context.Context, w io.Writer, start, end schedule.Date, actor string) (int, error) {
	if start.IsZero() || end.IsZero() {
		return 0, errors.Validation("rangeStart and rangeEnd are required", map[string]string{
			"rangeStart": "required", "rangeEnd": "required",
		})
	}
	if end.Before(start) {
		return 0, errors.Validation("rangeEnd must not be before rangeStart", map[string]string{
			"rangeEnd": "rangeEnd must not be before rangeStart",
		})
	}

	shifts, err := s.bookings.List(ctx, &model.BookingFilters{
		RangeStart: start, RangeEnd: end, Kind: model.BookingKindShift,
	})
	if err != nil {
		return 0, err
	}

	departments, err := s.departmentNames(ctx)
	if err != nil {
		return 0, err
	}
	providers := map[uuid.UUID]*model.Provider{}
	for _, b := range shifts {
		if _, ok := providers[b.ProviderID]; ok {
			continue
		}
		p, err := s.directory.GetProvider(ctx, b.ProviderID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return 0, err
		}
		providers[b.ProviderID] = p
	}

	rows := make([][]interface{}, 0, len(shifts))
	sort.SliceStable(shifts, func(i, j int) bool {
		a, b := shifts[i], shifts[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Window.Start != b.Window.Start {
			return a.Window.Start < b.Window.Start
		}
		return staffName(providers[a.ProviderID]) < staffName(providers[b.ProviderID])
	})
	for _, b := range shifts {
		p := providers[b.ProviderID]
		role := ""
		if p != nil {
			role = string(p.Role)
		}
		dept := departments[b.DepartmentID]
		if dept == "" {
			dept = b.DepartmentID
		}
		rows = append(rows, []interface{}{
			staffName(p), role, dept, b.Date.String(),
			b.Window.Start.String(), b.Window.End.String(),
			b.ShiftType, string(b.Status), b.Notes,
		})
	}

	if err := writeWorkbook(w, rows); err != nil {
		return 0, errors.NewInternal(err)
	}

	s.auditor.Log(ctx, model.AuditEntry{
		Action:     model.AuditActionExport,
		EntityType: model.AuditEntitySchedule,
		Actor:      actor,
		Changes:    map[string]interface{}{"rangeStart": start.String(), "rangeEnd": end.String(), "rows": len(rows)},
	})
	return len(rows), nil
}

func (s *Service) departmentNames(ctx context.Context) (map[string]string, error) {
	depts, err := s.directory.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(depts))
	for _, d := range depts {
		names[d.ID] = d.Name
	}
	return names, nil
}

func staffName(p *model.Provider) string {
	if p == nil {
		return "Unknown"
	}
	return p.FullName()
}

func writeWorkbook(w io.Writer, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, col := range Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, col); err != nil {
			return err
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
		_ = f.SetCellStyle(SheetName, "A1", last, style)
	}

	for r, row := range rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(SheetName, cell, val); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	return f.Write(w)
}
