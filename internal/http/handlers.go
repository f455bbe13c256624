package http

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

func (s *Server) bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		s.logger.Warn("invalid request body", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStats(c echo.Context) error {
	st, err := s.svc.GetVectorstoreStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleAddProduct(c echo.Context) error {
	var req AddProductRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	res, err := s.svc.AddProductKnowledge(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleAddKakTor(c echo.Context) error {
	var req AddKakTorRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	res, err := s.svc.AddKakTorKnowledge(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleAddSummary(c echo.Context) error {
	var req AddSummaryRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	res, err := s.svc.AddKakTorSummariesKnowledge(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleIngestFile(c echo.Context) error {
	var req IngestFileRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Path) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	n, err := s.svc.IngestFile(c.Request().Context(), req.Path, req.Project, req.Tahun)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, IngestFileResponse{File: filepath.Base(req.Path), Chunks: n})
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	out, err := s.svc.RetrievalWithFilter(c.Request().Context(), req.Query, req.K, vectorstore.Filter(req.Filter))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RetrieveResponse{Result: out})
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.svc.ResetKnowledgeBase(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ResetResponse{Status: "ok"})
}

func (s *Server) handleUpdateMetadata(c echo.Context) error {
	var req UpdateMetadataRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	n, err := s.svc.UpdateChunkMetadata(c.Request().Context(), vectorstore.Filter(req.Filter), req.NewMetadata)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UpdateMetadataResponse{Updated: n})
}

func (s *Server) handleListValues(c echo.Context) error {
	field := c.Param("field")
	values, err := s.svc.ListMetadataValues(c.Request().Context(), field)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ValuesResponse{Field: field, Values: values})
}

func (s *Server) handleRebuild(c echo.Context) error {
	var req RebuildRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	n, err := s.svc.RebuildAllEmbeddings(c.Request().Context(), req.BatchSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RebuildResponse{Rebuilt: n})
}

func (s *Server) handleListDocuments(c echo.Context) error {
	kind := c.Param("kind")
	docs, err := s.svc.ListDocuments(c.Request().Context(), kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DocumentsResponse{Kind: kind, Documents: docs})
}

func (s *Server) handleInstruction(c echo.Context) error {
	var req InstructionRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	instruction, docContext, err := s.svc.BuildInstructionContext(c.Request().Context(), req.TemplateName, req.MarkdownDir, req.SelectedFiles)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, knowledge.Payload{Instruction: instruction, Context: docContext})
}

func (s *Server) handleSummaryTender(c echo.Context) error {
	var req SummaryTenderRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	p, err := s.svc.BuildSummaryTenderPayload(c.Request().Context(), req.PromptInstructionName, req.KakTorName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
