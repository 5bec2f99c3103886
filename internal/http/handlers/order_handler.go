package handlers

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/http/dto"
	"github.com/tonswap/backend/internal/middleware"
	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/repositories"
	"github.com/tonswap/backend/internal/services"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService *services.OrderService
	log          *zap.Logger
}

func NewOrderHandler(orderService *services.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, log: log}
}

func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req dto.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	order, err := orderFromRequest(&req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	created, err := h.orderService.CreateOrder(c.Context(), order)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: created})
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	order, err := h.orderService.GetOrder(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "order not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	filter := repositories.OrderFilter{
		Status: c.Query("status"),
		Phase:  c.Query("phase"),
		Maker:  c.Query("maker"),
		Limit:  20,
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	orders, err := h.orderService.ListOrders(c.Context(), filter)
	if err != nil {
		h.log.Error("list orders failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: orders})
}

func (h *OrderHandler) ListEscrows(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	escrows, err := h.orderService.ListEscrows(c.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "order not found"})
		}
		h.log.Error("list escrows failed", zap.String("order_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: escrows})
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	var req dto.CancelOrderRequest
	_ = c.BodyParser(&req)

	caller := req.Caller
	if caller == "" {
		caller = middleware.GetSubject(c)
	}

	if err := h.orderService.CancelOrder(c.Context(), id, caller); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "order not found"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func orderFromRequest(req *dto.CreateOrderRequest) (*models.Order, error) {
	makerAsset, err := assetFromRequest(req.MakerAsset)
	if err != nil {
		return nil, fmt.Errorf("maker asset: %w", err)
	}
	takerAsset, err := assetFromRequest(req.TakerAsset)
	if err != nil {
		return nil, fmt.Errorf("taker asset: %w", err)
	}

	order := &models.Order{
		Maker:            req.Maker,
		MakerAsset:       makerAsset,
		TakerAsset:       takerAsset,
		SourceChain:      req.SourceChain,
		DestinationChain: req.DestinationChain,
		RefundAddress:    req.RefundAddress,
		TargetAddress:    req.TargetAddress,
		SecretHash:       req.SecretHash,
		ResolverFeeBPS:   req.ResolverFeeBPS,
		TimelockDuration: req.TimelockDuration,
		FinalityTimelock: req.FinalityTimelock,
		ExclusivePeriod:  req.ExclusivePeriod,
	}

	if req.MakerSafetyDeposit != "" {
		if order.MakerSafetyDeposit, err = parseAmount(req.MakerSafetyDeposit); err != nil {
			return nil, fmt.Errorf("maker safety deposit: %w", err)
		}
	}
	if req.TakerSafetyDeposit != "" {
		if order.TakerSafetyDeposit, err = parseAmount(req.TakerSafetyDeposit); err != nil {
			return nil, fmt.Errorf("taker safety deposit: %w", err)
		}
	}

	return order, nil
}

func assetFromRequest(req dto.AssetRequest) (models.Asset, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return models.Asset{}, err
	}
	return models.Asset{
		Kind:    req.Kind,
		Token:   req.Token,
		Amount:  amount,
		Network: req.Network,
	}, nil
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}
