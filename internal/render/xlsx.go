package render

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"attendx/internal/sheets"
)

const attendanceSheet = "Attendance"

// AttendanceXLSX builds a workbook of the students marked for one subject on
// one date. It returns the file bytes and a suggested file name.
func AttendanceXLSX(subjectName, date string, records []sheets.StudentRecord) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(attendanceSheet)
	if err != nil {
		return nil, "", fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("drop default sheet: %w", err)
	}

	f.SetColWidth(attendanceSheet, "A", "A", 6)
	f.SetColWidth(attendanceSheet, "B", "B", 28)
	f.SetColWidth(attendanceSheet, "C", "C", 14)
	f.SetColWidth(attendanceSheet, "D", "D", 22)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetCellValue(attendanceSheet, "A1", fmt.Sprintf("%s · %s · %d present", subjectName, date, len(records)))
	f.MergeCell(attendanceSheet, "A1", "D1")
	f.SetCellStyle(attendanceSheet, "A1", "A1", headerStyle)

	for i, h := range []string{"#", "Student", "Roll No", "Submitted"} {
		name, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(attendanceSheet, name, h)
	}
	f.SetCellStyle(attendanceSheet, "A2", "D2", headerStyle)

	for i, r := range records {
		row := i + 3
		f.SetCellValue(attendanceSheet, cell("A", row), i+1)
		f.SetCellValue(attendanceSheet, cell("B", row), r.StudentName)
		f.SetCellValue(attendanceSheet, cell("C", row), r.RollNo)
		f.SetCellValue(attendanceSheet, cell("D", row), r.SubmissionTime)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, "", fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("attendance_%s_%s.xlsx", date, fileSafe(subjectName)), nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// fileSafe keeps letters and digits and turns everything else into '_'.
func fileSafe(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			if n := len(out); n == 0 || out[n-1] != '_' {
				out = append(out, '_')
			}
		}
	}
	return string(bytes.Trim(out, "_"))
}
