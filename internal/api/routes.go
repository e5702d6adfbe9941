package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/mailbox"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/overseer"
	"github.com/zulandar/switchboard/internal/policy"
	"github.com/zulandar/switchboard/internal/tasks"
	"gorm.io/gorm"
)

// registerRoutes sets up the REST facade. Input validation lives here; the
// core packages assume resolved, typed parameters.
func registerRoutes(router *gin.Engine, db *gorm.DB, notify mailbox.NotifyConfig, taskClient *tasks.Client) {
	apiGroup := router.Group("/api")

	apiGroup.GET("/projects", handleListProjects(db))
	apiGroup.GET("/agents", handleListAgents(db))
	apiGroup.POST("/agents", handleRegisterAgent(db))
	apiGroup.GET("/messages", handleGetMessages(db))
	apiGroup.POST("/messages", handleSendMessage(db, notify))
	apiGroup.POST("/messages/read", handleMarkRead(db))
	apiGroup.POST("/messages/ack", handleAcknowledge(db))
	apiGroup.GET("/contacts", handleListContacts(db))
	apiGroup.POST("/contacts/request", handleRequestContact(db))
	apiGroup.POST("/contacts/respond", handleRespondContact(db))
	apiGroup.POST("/broadcast", handleBroadcast(db, notify))
	apiGroup.GET("/approvals", handleListApprovals(db))
	apiGroup.POST("/approvals", handleRequestApproval(db))
	apiGroup.POST("/approvals/:id/resolve", handleResolveApproval(db))

	if taskClient != nil {
		apiGroup.GET("/tasks", handleListTasks(taskClient))
		apiGroup.POST("/tasks/link", handleLinkTask(taskClient))
		apiGroup.POST("/tasks/update", handleUpdateTask(taskClient))
	}
}

// writeError maps component errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var policyErr *mailbox.PolicyError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, directory.ErrNotFound),
		errors.Is(err, policy.ErrLinkNotFound),
		errors.Is(err, overseer.ErrApprovalNotFound):
		status = http.StatusNotFound
	case errors.As(err, &policyErr):
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func handleListProjects(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := directory.ListProjects(db)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, projects)
	}
}

func handleListAgents(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		project := c.Query("project")
		if project == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project param required"})
			return
		}
		agents, err := directory.List(db, project)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, agents)
	}
}

func handleRegisterAgent(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ProjectSlug   string `json:"projectSlug"`
			Name          string `json:"name"`
			Program       string `json:"program"`
			Model         string `json:"model"`
			ContactPolicy string `json:"contactPolicy"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		agent, err := directory.Register(db, directory.RegisterParams{
			ProjectSlug:   body.ProjectSlug,
			Name:          body.Name,
			Program:       body.Program,
			Model:         body.Model,
			ContactPolicy: models.ContactPolicy(body.ContactPolicy),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, agent)
	}
}

// handleGetMessages serves three views from one endpoint, mirroring the
// query shape of the original API: a thread view, an agent inbox, or the
// project-wide recent list.
func handleGetMessages(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		project := c.Query("project")
		if project == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project param required"})
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))

		if thread := c.Query("thread"); thread != "" {
			msgs, err := mailbox.Thread(db, project, thread)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, msgs)
			return
		}

		if agent := c.Query("agent"); agent != "" {
			if limit <= 0 {
				limit = 50
			}
			unread := c.Query("unread") == "true"
			msgs, err := mailbox.Inbox(db, project, agent, limit, unread)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, msgs)
			return
		}

		msgs, err := mailbox.ProjectMessages(db, project, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

func handleSendMessage(db *gorm.DB, notify mailbox.NotifyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ProjectSlug string   `json:"projectSlug"`
			From        string   `json:"from"`
			To          []string `json:"to"`
			Subject     string   `json:"subject"`
			Body        string   `json:"body"`
			ThreadID    string   `json:"threadId"`
			Importance  string   `json:"importance"`
			AckRequired bool     `json:"ackRequired"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		msg, err := mailbox.Send(db, mailbox.SendParams{
			ProjectSlug: body.ProjectSlug,
			From:        body.From,
			To:          body.To,
			Subject:     body.Subject,
			Body:        body.Body,
			ThreadID:    body.ThreadID,
			Importance:  body.Importance,
			AckRequired: body.AckRequired,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		if mailbox.ShouldNotify(msg) {
			mailbox.Notify(msg, notify)
		}
		c.JSON(http.StatusOK, msg)
	}
}

type stampBody struct {
	ProjectSlug string `json:"projectSlug"`
	AgentName   string `json:"agentName"`
	MessageIDs  []uint `json:"messageIds"`
}

func handleMarkRead(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body stampBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		if err := mailbox.MarkAsRead(db, body.ProjectSlug, body.AgentName, body.MessageIDs); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func handleAcknowledge(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body stampBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		if err := mailbox.Acknowledge(db, body.ProjectSlug, body.AgentName, body.MessageIDs); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func handleListContacts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		project := c.Query("project")
		agentName := c.Query("agent")
		if project == "" || agentName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project and agent params required"})
			return
		}
		agent, err := directory.Whois(db, project, agentName)
		if err != nil {
			writeError(c, err)
			return
		}
		links, err := policy.ListContacts(db, agent.ProjectID, agent.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, links)
	}
}

type contactBody struct {
	ProjectSlug string `json:"projectSlug"`
	From        string `json:"from"`
	To          string `json:"to"`
	Reason      string `json:"reason"`
	Decision    string `json:"decision"`
}

func resolveContactPair(db *gorm.DB, body contactBody) (*models.Agent, *models.Agent, error) {
	from, err := directory.Whois(db, body.ProjectSlug, body.From)
	if err != nil {
		return nil, nil, err
	}
	to, err := directory.Whois(db, body.ProjectSlug, body.To)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func handleRequestContact(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body contactBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		from, to, err := resolveContactPair(db, body)
		if err != nil {
			writeError(c, err)
			return
		}
		link, err := policy.RequestContact(db, from.ProjectID, from.ID, to.ID, body.Reason)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, link)
	}
}

func handleRespondContact(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body contactBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		from, to, err := resolveContactPair(db, body)
		if err != nil {
			writeError(c, err)
			return
		}
		link, err := policy.RespondContact(db, from.ProjectID, from.ID, to.ID, models.LinkStatus(body.Decision))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, link)
	}
}

func handleBroadcast(db *gorm.DB, notify mailbox.NotifyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ProjectSlug string   `json:"projectSlug"`
			Subject     string   `json:"subject"`
			Body        string   `json:"body"`
			To          []string `json:"to"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		msg, err := overseer.Broadcast(db, overseer.BroadcastParams{
			ProjectSlug: body.ProjectSlug,
			Subject:     body.Subject,
			Body:        body.Body,
			To:          body.To,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		mailbox.Notify(msg, notify)
		c.JSON(http.StatusOK, msg)
	}
}

func handleListApprovals(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		approvals, err := overseer.ListPendingApprovals(db)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, approvals)
	}
}

func handleRequestApproval(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			EntityType string `json:"entityType"`
			EntityID   uint   `json:"entityId"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.EntityType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entityType and entityId required"})
			return
		}
		approval, err := overseer.RequestApproval(db, body.EntityType, body.EntityID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, approval)
	}
}

func handleResolveApproval(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad approval id"})
			return
		}
		var body struct {
			Decision string `json:"decision"`
			Note     string `json:"note"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		approval, err := overseer.ResolveApproval(db, uint(id), body.Decision, body.Note)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, approval)
	}
}

func handleListTasks(client *tasks.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := client.ListTasks(c.Request.Context(), c.Query("agent"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func handleLinkTask(client *tasks.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ProjectSlug string `json:"projectSlug"`
			TaskID      string `json:"taskId"`
			ThreadID    string `json:"threadId"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.TaskID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "taskId required"})
			return
		}
		if err := client.LinkTask(c.Request.Context(), body.ProjectSlug, body.TaskID, body.ThreadID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func handleUpdateTask(client *tasks.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ProjectSlug string `json:"projectSlug"`
			AgentName   string `json:"agentName"`
			TaskID      string `json:"taskId"`
			Status      string `json:"status"`
			Note        string `json:"note"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.TaskID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "taskId required"})
			return
		}
		task, err := client.UpdateStatus(c.Request.Context(), body.ProjectSlug, body.AgentName, body.TaskID, body.Status, body.Note)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}
