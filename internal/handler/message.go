package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/service"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

type MessageHandler struct {
	messageService  service.IMessageService
	deliveryService service.IDeliveryService
	logger          *logger.Logger
}

func NewMessageHandler(messageService service.IMessageService, deliveryService service.IDeliveryService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService:  messageService,
		deliveryService: deliveryService,
		logger:          log.Named("message_handler"),
	}
}

// messageView is the public projection of a stored message.
type messageView struct {
	ID               int64   `json:"id"`
	Content          string  `json:"content"`
	ImageURL         *string `json:"imageUrl"`
	RecipientName    string  `json:"recipientName"`
	RelationshipRole string  `json:"relationshipRole"`
}

func newMessageView(m *model.Message) *messageView {
	if m == nil {
		return nil
	}
	return &messageView{
		ID:               m.ID,
		Content:          m.Content,
		ImageURL:         m.ImageURL,
		RecipientName:    m.RecipientName,
		RelationshipRole: m.RelationshipRole,
	}
}

// CreateMessage handles POST /api/messages
func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req service.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, h.logger, err)
		return
	}

	msg, err := h.messageService.CreateMessage(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "message generated", logger.MessageID(msg.ID))
	c.JSON(http.StatusOK, msg)
}

// GetMessage handles GET /api/messages/:id
func (h *MessageHandler) GetMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	msg, err := h.messageService.GetMessage(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newMessageView(msg))
}

// SendMessage handles POST /api/messages/:id/send
func (h *MessageHandler) SendMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.SendMessageRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	result, err := h.deliveryService.SendMessage(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": result})
}

type cardImageRequest struct {
	Prompt string `json:"prompt" binding:"max=4000"`
}

// GenerateCardImage handles POST /api/card-image
func (h *MessageHandler) GenerateCardImage(c *gin.Context) {
	var req cardImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	url, err := h.messageService.GenerateCardImage(c.Request.Context(), req.Prompt)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imageUrl": url})
}
