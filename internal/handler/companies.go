package handler

import (
	"net/http"
	"strings"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/seed"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type companyRequest struct {
	Name        string `json:"name" binding:"required"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Info        string `json:"info"`
}

func (r companyRequest) toDomain() domain.Company {
	return domain.Company{
		Name:        strings.TrimSpace(r.Name),
		URL:         strings.TrimSpace(r.URL),
		Description: strings.TrimSpace(r.Description),
		Info:        strings.TrimSpace(r.Info),
	}
}

type importCompaniesRequest struct {
	Companies []companyRequest `json:"companies" binding:"required,dive"`
}

type scrapeRequest struct {
	URL  string `json:"url" binding:"required"`
	Save bool   `json:"save"`
}

type scrapeResponse struct {
	Result  any             `json:"result"`
	Company *domain.Company `json:"company,omitempty"`
}

func (h *Handler) listCompanies(c *gin.Context) {
	companies, err := h.companies.List(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": companies})
}

func (h *Handler) createCompany(c *gin.Context) {
	var req companyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, domain.NewValidationError("body", err.Error()))
		return
	}
	company, err := h.companies.Create(c.Request.Context(), req.toDomain())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	h.logger.Info("Company created", zap.Int64("companyID", company.ID), zap.String("name", company.Name))
	c.JSON(http.StatusCreated, company)
}

// importCompanies принимает JSON {"companies": [...]} или seed файл YAML.
func (h *Handler) importCompanies(c *gin.Context) {
	var companies []domain.Company
	if strings.Contains(c.ContentType(), "yaml") {
		file, err := seed.Parse(c.Request.Body)
		if err != nil {
			handleServiceError(c, domain.NewValidationError("body", err.Error()))
			return
		}
		companies = file.DomainCompanies()
	} else {
		var req importCompaniesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleServiceError(c, domain.NewValidationError("body", err.Error()))
			return
		}
		for _, r := range req.Companies {
			companies = append(companies, r.toDomain())
		}
	}

	res, err := h.companies.Import(c.Request.Context(), companies)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	h.logger.Info("Companies imported", zap.Int("inserted", res.Inserted), zap.Int("skipped", res.Skipped))
	c.JSON(http.StatusOK, res)
}

func (h *Handler) deleteCompany(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	if err := h.companies.Delete(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// scrapeCompany собирает данные с сайта и при save=true сохраняет компанию.
func (h *Handler) scrapeCompany(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, domain.NewValidationError("body", err.Error()))
		return
	}
	res, err := h.scraper.Scrape(c.Request.Context(), req.URL)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if !req.Save {
		c.JSON(http.StatusOK, scrapeResponse{Result: res})
		return
	}
	if strings.TrimSpace(res.CompanyName) == "" {
		handleServiceError(c, domain.NewValidationError("url", "page has no title to use as company name"))
		return
	}
	company, err := h.companies.Create(c.Request.Context(), res.Company())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, scrapeResponse{Result: res, Company: &company})
}
