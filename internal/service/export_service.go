package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/models"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
	"github.com/aiready/selfcheck-api/pkg/export"
)

// ExportFormat enumerates version export renderings.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
)

type versionReader interface {
	GetByID(ctx context.Context, id string) (*models.AssessmentVersion, error)
	ListItems(ctx context.Context, versionID string) ([]models.AssessmentItem, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// ExportResult is one rendered version export.
type ExportResult struct {
	Payload     []byte
	ContentType string
	Filename    string
}

// ExportService renders assessment versions as JSON, CSV or PDF by joining
// stored answers with the checklist definition.
type ExportService struct {
	versions   versionReader
	checklist  checklistReader
	csv        csvRenderer
	pdf        pdfRenderer
	pdfEnabled bool
	logger     *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(versions versionReader, checklist checklistReader, csv csvRenderer, pdf pdfRenderer, pdfEnabled bool, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		versions:   versions,
		checklist:  checklist,
		csv:        csv,
		pdf:        pdf,
		pdfEnabled: pdfEnabled,
		logger:     logger,
	}
}

// ExportVersion renders one owned version in the requested format.
func (s *ExportService) ExportVersion(ctx context.Context, ownerID, versionID string, format ExportFormat) (*ExportResult, error) {
	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	if version.OwnerID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "version belongs to another user")
	}

	doc, err := s.buildExport(ctx, version)
	if err != nil {
		return nil, err
	}

	filename := buildExportFilename(version.Name, string(format))
	switch format {
	case ExportFormatJSON:
		payload, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render json export")
		}
		return &ExportResult{Payload: payload, ContentType: "application/json", Filename: filename}, nil
	case ExportFormatCSV:
		payload, err := s.csv.Render(buildExportDataset(doc))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{Payload: payload, ContentType: "text/csv", Filename: filename}, nil
	case ExportFormatPDF:
		if !s.pdfEnabled {
			return nil, appErrors.Clone(appErrors.ErrValidation, "pdf export is disabled")
		}
		subtitle := fmt.Sprintf("Exported %s", doc.ExportDate.Format("2006-01-02 15:04 MST"))
		payload, err := s.pdf.Render(buildExportDataset(doc), fmt.Sprintf("Readiness Assessment %s", version.Name), subtitle)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{Payload: payload, ContentType: "application/pdf", Filename: filename}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *ExportService) buildExport(ctx context.Context, version *models.AssessmentVersion) (*dto.VersionExport, error) {
	definitions, err := s.checklist.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist")
	}
	answers, err := s.versions.ListItems(ctx, version.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}

	type answerKey struct {
		itemID         string
		assessmentType models.AssessmentType
	}
	byKey := make(map[answerKey]models.AssessmentItem, len(answers))
	for _, answer := range answers {
		byKey[answerKey{answer.ItemID, answer.AssessmentType}] = answer
	}

	doc := &dto.VersionExport{
		Version:    "1.0",
		ExportDate: time.Now().UTC(),
		VersionInfo: dto.VersionExportInfo{
			ID:        version.ID,
			Name:      version.Name,
			IsActive:  version.IsActive,
			CreatedAt: version.CreatedAt,
			UpdatedAt: version.UpdatedAt,
		},
		Metadata: map[string]int{},
	}
	if version.Description != nil {
		doc.VersionInfo.Description = *version.Description
	}

	answered := 0
	for _, def := range definitions {
		item := dto.ExportedItem{
			ItemID:    def.ID,
			Category:  def.Category,
			Title:     def.Title,
			Mandatory: def.Mandatory,
			Met:       "N/A",
			Notes:     def.Notes,
		}
		if answer, ok := byKey[answerKey{def.ID, def.AssessmentType}]; ok {
			item.Met = renderMet(answer.Met)
			item.Response = answer.Response
			if answer.Met != nil {
				answered++
			}
		}
		switch def.AssessmentType {
		case models.AssessmentTypePrerequisites:
			doc.AssessmentData.Prerequisites = append(doc.AssessmentData.Prerequisites, item)
		case models.AssessmentTypeTechnical:
			doc.AssessmentData.Technical = append(doc.AssessmentData.Technical, item)
		}
	}

	doc.Metadata["totalItems"] = len(definitions)
	doc.Metadata["answeredItems"] = answered
	doc.Metadata["prerequisiteItems"] = len(doc.AssessmentData.Prerequisites)
	doc.Metadata["technicalItems"] = len(doc.AssessmentData.Technical)
	return doc, nil
}

var exportHeaders = []string{"Section", "Item ID", "Category", "Title", "Mandatory", "Met", "Response", "Notes"}

func buildExportDataset(doc *dto.VersionExport) export.Dataset {
	rows := make([]map[string]string, 0, len(doc.AssessmentData.Prerequisites)+len(doc.AssessmentData.Technical))
	appendSection := func(section string, items []dto.ExportedItem) {
		for _, item := range items {
			mandatory := "No"
			if item.Mandatory {
				mandatory = "Yes"
			}
			rows = append(rows, map[string]string{
				"Section":   section,
				"Item ID":   item.ItemID,
				"Category":  item.Category,
				"Title":     item.Title,
				"Mandatory": mandatory,
				"Met":       item.Met,
				"Response":  item.Response,
				"Notes":     item.Notes,
			})
		}
	}
	appendSection("Prerequisites", doc.AssessmentData.Prerequisites)
	appendSection("Technical", doc.AssessmentData.Technical)
	return export.Dataset{Headers: exportHeaders, Rows: rows}
}

// renderMet maps the tri-state answer onto the human readable export value.
func renderMet(met *bool) string {
	switch {
	case met == nil:
		return "N/A"
	case *met:
		return "Yes"
	default:
		return "No"
	}
}

func buildExportFilename(versionName, extension string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	name := strings.ToLower(versionName)
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	name = replacer.Replace(name)
	if len(name) > 60 {
		name = name[:60]
	}
	if name == "" {
		name = "assessment"
	}
	return fmt.Sprintf("assessment_%s_%s.%s", name, timestamp, extension)
}
