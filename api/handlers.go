package api

import (
	"fmt"
	"net/http"
	"time"

	"mealchat/conversation"
	"mealchat/meal"
	"mealchat/preference"
	"mealchat/session"
	"mealchat/weekly"

	"github.com/gin-gonic/gin"
)

type promptRequest struct {
	Message string `json:"message" binding:"required"`
}

type promptResponse struct {
	Preferences preference.Store     `json:"preferences"`
	Reply       conversation.Message `json:"reply"`
	Ready       bool                 `json:"readyForGeneration"`
	Error       string               `json:"error,omitempty"`
}

func (s *Server) handleConversation(c *gin.Context) {
	sess := current(c)
	c.JSON(http.StatusOK, gin.H{
		"transcript":         sess.Transcript(),
		"preferences":        sess.Preferences(),
		"readyForGeneration": sess.Ready(),
		"quickResponses":     sess.QuickResponses(),
	})
}

func (s *Server) handlePromptUser(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	res, err := current(c).Send(c.Request.Context(), req.Message)
	resp := promptResponse{Preferences: res.Preferences, Reply: res.Reply, Ready: res.Ready}
	if err != nil {
		// the retry message travels with the error so the client can show it
		if res.Reply.ID == "" {
			abort(c, err)
			return
		}
		resp.Error = err.Error()
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGenerate(c *gin.Context) {
	meals, err := current(c).Generate(c.Request.Context())
	if err != nil {
		status := statusFor(err)
		if status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
			abort(c, err)
			return
		}
		c.AbortWithStatusJSON(status, gin.H{
			"error":   err.Error(),
			"message": session.GenerateFailedMessage,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meals": meals})
}

func (s *Server) handleTriage(c *gin.Context) {
	v, err := current(c).Triage()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleDecide(accept bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := current(c).Decide(c.Request.Context(), accept)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

type createPlanRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

func (s *Server) handleCreatePlan(c *gin.Context) {
	var req createPlanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := current(c).CreatePlan(c.Request.Context(), req.Name, start, end)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, session.NewPlanView(p))
}

func (s *Server) handleListPlans(c *gin.Context) {
	plans, err := current(c).Plans(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans, "count": len(plans)})
}

func (s *Server) handleGetPlan(c *gin.Context) {
	p, err := current(c).OpenPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, session.NewPlanView(p))
}

func (s *Server) handleProgress(c *gin.Context) {
	prog, err := current(c).Progress(c.Request.Context(), c.Param("id"), weekly.DayOfWeek(c.Param("day")))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, prog)
}

type dayMealsRequest struct {
	Meals []meal.Meal `json:"meals"`
	// Accepted schedules the latest accepted candidates instead of Meals.
	Accepted bool `json:"accepted"`
}

func (s *Server) handleAddMeals(c *gin.Context) {
	var req dayMealsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess := current(c)
	day := weekly.DayOfWeek(c.Param("day"))
	var p weekly.Plan
	var err error
	if req.Accepted {
		p, err = sess.AddAccepted(c.Request.Context(), c.Param("id"), day)
	} else {
		p, err = sess.AddMeals(c.Request.Context(), c.Param("id"), day, req.Meals)
	}
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, session.NewPlanView(p))
}

func (s *Server) handleReplaceDay(c *gin.Context) {
	var req dayMealsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	p, err := current(c).ReplaceDay(c.Request.Context(), c.Param("id"), weekly.DayOfWeek(c.Param("day")), req.Meals)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, session.NewPlanView(p))
}

func (s *Server) handleFavorites(c *gin.Context) {
	favs, err := current(c).Favorites(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": favs, "count": len(favs)})
}

func (s *Server) handleToggleFavorite(c *gin.Context) {
	fav, err := current(c).ToggleFavorite(c.Request.Context(), c.Param("mealID"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mealId": c.Param("mealID"), "favorite": fav})
}
