package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hyperifyio/goreader/internal/dictionary"
	"github.com/hyperifyio/goreader/internal/ratio"
	"github.com/hyperifyio/goreader/internal/store"
)

// SentenceView is a stored sentence with its default display language.
type SentenceView struct {
	store.Sentence
	DefaultLang ratio.Lang `json:"default_lang"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"policy": s.Decider.Policy,
		"ratios": ratio.Values(s.Decider.Policy),
	})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) listBooks(c *gin.Context) {
	books, err := s.Store.ListBooks(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (s *Server) getBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := s.Store.GetBook(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) listChapters(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.Store.GetBook(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	chapters, err := s.Store.ListChapters(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": chapters})
}

func (s *Server) getChapter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ch, err := s.Store.GetChapter(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s *Server) listSentences(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	englishRatio := DefaultRatio
	if raw, present := c.GetQuery("ratio"); present {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "ratio must be an integer")
			return
		}
		if englishRatio, err = ratio.Normalize(n, s.Decider.Policy); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	ch, err := s.Store.GetChapter(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	sentences, err := s.Store.ListSentences(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]SentenceView, len(sentences))
	for i, st := range sentences {
		views[i] = SentenceView{Sentence: st, DefaultLang: s.Decider.Decide(st.DifficultyScore, englishRatio)}
	}
	c.JSON(http.StatusOK, gin.H{
		"chapter":   ch,
		"ratio":     englishRatio,
		"sentences": views,
	})
}

type lookupRequest struct {
	Word         string `json:"word" binding:"required"`
	SentenceText string `json:"sentence_text"`
}

func (s *Server) lookup(c *gin.Context) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "word is required")
		return
	}
	if s.Dictionary == nil {
		s.fail(c, dictionary.ErrNoModel)
		return
	}
	res, err := s.Dictionary.Lookup(c.Request.Context(), req.Word, req.SentenceText)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type explainRequest struct {
	Word         string `json:"word" binding:"required"`
	SentenceID   string `json:"sentence_id" binding:"required"`
	SentenceText string `json:"sentence_text"`
}

func (s *Server) explain(c *gin.Context) {
	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "word and sentence_id are required")
		return
	}
	sid, err := uuid.Parse(req.SentenceID)
	if err != nil {
		badRequest(c, "invalid sentence_id")
		return
	}
	if s.Dictionary == nil {
		s.fail(c, dictionary.ErrNoModel)
		return
	}
	res, err := s.Dictionary.Explain(c.Request.Context(), req.Word, sid, req.SentenceText)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
