package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/printdesk/internal/models"
)

// CommitRequest names the staged upload and the project it now belongs to.
type CommitRequest struct {
	StagingRef string
	ProjectID  uuid.UUID
	Student    models.User
	Project    models.Project
}

// ArtifactStore moves uploads out of staging once a payment is confirmed.
// Commit must be safe to repeat for the same project.
type ArtifactStore interface {
	Commit(ctx context.Context, req CommitRequest) (folder string, err error)
}

// DiskArtifactStore keeps artifacts on the local filesystem.
type DiskArtifactStore struct {
	stagingDir string
	uploadDir  string
}

func NewDiskArtifactStore(stagingDir, uploadDir string) *DiskArtifactStore {
	return &DiskArtifactStore{stagingDir: stagingDir, uploadDir: uploadDir}
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// FolderName builds Student_College_ProjectID with unsafe characters collapsed to underscores.
func FolderName(studentName, college string, projectID uuid.UUID) string {
	return fmt.Sprintf("%s_%s_%s",
		clip(nonAlphanumeric.ReplaceAllString(studentName, "_"), 30),
		clip(nonAlphanumeric.ReplaceAllString(college, "_"), 40),
		projectID,
	)
}

func clip(s string, n int) string {
	if s == "" {
		return "unknown"
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Commit renames staging/<ref> into the project folder and writes the vendor details file.
// A destination that already exists counts as committed.
func (s *DiskArtifactStore) Commit(ctx context.Context, req CommitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := strings.TrimSpace(req.StagingRef)
	if ref == "" || ref != filepath.Base(ref) || ref == "." || ref == ".." {
		return "", fmt.Errorf("invalid staging ref %q", req.StagingRef)
	}

	folder := FolderName(req.Student.Name, req.Student.College, req.ProjectID)
	dest := filepath.Join(s.uploadDir, folder)

	if _, err := os.Stat(dest); err == nil {
		if err := ensureDetails(dest, req); err != nil {
			return "", err
		}
		return folder, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat artifact folder: %w", err)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	src := filepath.Join(s.stagingDir, ref)
	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("move staged artifacts: %w", err)
	}

	if err := writeDetails(dest, req); err != nil {
		return "", err
	}

	return folder, nil
}

const detailsFile = "student_details.json"

type studentDetails struct {
	Student struct {
		Name       string `json:"name"`
		Email      string `json:"email"`
		College    string `json:"college"`
		Department string `json:"department"`
		Semester   int    `json:"semester"`
	} `json:"studentInfo"`
	Project struct {
		ID             uuid.UUID `json:"projectId"`
		Title          string    `json:"title"`
		Description    string    `json:"description"`
		GatewayOrderID string    `json:"gatewayOrderId"`
	} `json:"projectInfo"`
	Printing    models.PrintSpecification `json:"printingDetails"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// ensureDetails fills in the details file when an earlier commit moved the files but died before writing it.
func ensureDetails(dir string, req CommitRequest) error {
	_, err := os.Stat(filepath.Join(dir, detailsFile))
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat student details: %w", err)
	}
	return writeDetails(dir, req)
}

func writeDetails(dir string, req CommitRequest) error {
	var d studentDetails
	d.Student.Name = req.Student.Name
	d.Student.Email = req.Student.Email
	d.Student.College = req.Student.College
	d.Student.Department = req.Student.Department
	d.Student.Semester = req.Student.Semester
	d.Project.ID = req.ProjectID
	d.Project.Title = req.Project.Title
	d.Project.Description = req.Project.Description
	d.Project.GatewayOrderID = req.Project.GatewayOrderID
	d.Printing = req.Project.Specification.Data()
	d.GeneratedAt = time.Now().UTC()

	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal student details: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, detailsFile), b, 0o644); err != nil {
		return fmt.Errorf("write student details: %w", err)
	}
	return nil
}
