// Package productform holds the server-side state of product edit forms and saves them
// through the catalog API.
package productform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"storeadmin/internal/events"
	"storeadmin/internal/models"
	"storeadmin/internal/properties"
	"storeadmin/internal/upload"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ListingPath is where the administrator is sent after a successful save.
const ListingPath = "/products"

var (
	ErrInvalidPrice    = errors.New("price must be a number")
	ErrSessionNotFound = errors.New("form session not found")
)

// ProductAPI is the product half of the catalog client.
type ProductAPI interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, p models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, p models.Product) error
}

// CategorySource provides the category snapshot a form resolves properties against.
type CategorySource interface {
	Load(ctx context.Context) ([]models.Category, error)
}

// Deps are the collaborators every form shares.
type Deps struct {
	Products   ProductAPI
	Categories CategorySource
	Uploader   upload.Uploader
	Logger     *zap.SugaredLogger
}

// SaveError reports a rejected create or update.
type SaveError struct {
	Op  string // create or update
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("%s product: %v", e.Op, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Result is returned by a successful Save.
type Result struct {
	Navigate string         `json:"navigate"`
	Product  models.Product `json:"product"`
}

// State is a read-only view of the form.
type State struct {
	ID                  uuid.UUID             `json:"id"`
	ProductID           string                `json:"product_id,omitempty"`
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	Price               decimal.Decimal       `json:"price"`
	Category            string                `json:"category"`
	Properties          map[string]string     `json:"properties"`
	AvailableProperties []models.PropertySpec `json:"available_properties"`
	Images              []string              `json:"images"`
	Uploading           bool                  `json:"uploading"`
	PendingUploads      int                   `json:"pending_uploads"`
}

// Controller is one open product form.
type Controller struct {
	id      uuid.UUID
	api     ProductAPI
	images  *ImageList
	uploads *upload.Coordinator
	broker  *events.Broker
	logger  *zap.SugaredLogger

	mu          sync.Mutex
	productID   string
	title       string
	description string
	price       decimal.Decimal
	category    string
	values      map[string]string
	categories  []models.Category
}

// Open loads the category list and, when productID is set, the product being edited.
// The product is read once here and never re-fetched.
func Open(ctx context.Context, deps Deps, productID string) (*Controller, error) {
	categories, err := deps.Categories.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	c := &Controller{
		id:         uuid.New(),
		api:        deps.Products,
		broker:     events.NewBroker(32),
		logger:     deps.Logger,
		values:     make(map[string]string),
		categories: categories,
	}

	var initialImages []string
	if productID != "" {
		product, err := deps.Products.GetProduct(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", productID, err)
		}
		c.productID = product.ID
		c.title = product.Title
		c.description = product.Description
		c.price = product.Price
		c.category = product.Category
		for k, v := range product.Properties {
			c.values[k] = v
		}
		initialImages = product.Images
	}

	c.images = NewImageList(initialImages)
	c.uploads = upload.NewCoordinator(deps.Uploader, c.images, c.broker, deps.Logger.With("form_id", c.id))
	return c, nil
}

func (c *Controller) ID() uuid.UUID { return c.id }

func (c *Controller) SetTitle(title string) {
	c.mu.Lock()
	c.title = title
	c.mu.Unlock()
	c.fieldChanged("title", title)
}

func (c *Controller) SetDescription(description string) {
	c.mu.Lock()
	c.description = description
	c.mu.Unlock()
	c.fieldChanged("description", description)
}

// SetPrice accepts what a numeric input would: an empty value or a decimal number.
func (c *Controller) SetPrice(raw string) error {
	raw = strings.TrimSpace(raw)
	price := decimal.Zero
	if raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return ErrInvalidPrice
		}
		price = parsed
	}

	c.mu.Lock()
	c.price = price
	c.mu.Unlock()
	c.fieldChanged("price", price)
	return nil
}

// SetCategory changes the selected category. Entered property values are kept.
func (c *Controller) SetCategory(categoryID string) {
	c.mu.Lock()
	c.category = categoryID
	c.mu.Unlock()
	c.fieldChanged("category", categoryID)
}

func (c *Controller) SetProperty(name, value string) {
	c.mu.Lock()
	c.values[name] = value
	c.mu.Unlock()
	c.fieldChanged("properties."+name, value)
}

// Properties resolves the selectable properties of the selected category.
func (c *Controller) Properties() []models.PropertySpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return properties.Resolve(c.categories, c.category)
}

// ReorderImages replaces the image list with the administrator's order.
func (c *Controller) ReorderImages(images []string) {
	list := c.images.Replace(images)
	c.broker.Publish(events.Event{Kind: events.KindImagesChanged, Value: list})
}

// UploadImages starts a batch that appends to this form's images.
func (c *Controller) UploadImages(ctx context.Context, files []models.UploadFile) (*upload.Batch, error) {
	return c.uploads.Start(ctx, files)
}

func (c *Controller) Uploading() bool {
	return c.uploads.Uploading()
}

// Save waits for the uploads in flight when it is called, then creates or updates the
// product. Uploads started after the call are not waited for.
func (c *Controller) Save(ctx context.Context) (*Result, error) {
	inFlight := c.uploads.InFlight()
	for _, batch := range inFlight {
		if err := batch.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, c.saveFailed(c.operation(), ctxErr)
			}
			c.logger.Warnw("saving without failed uploads", "form_id", c.id, "batch_id", batch.ID, "error", err)
		}
	}

	product := c.payload()
	op := c.operation()

	if product.ID == "" {
		created, err := c.api.CreateProduct(ctx, product)
		if err != nil {
			return nil, c.saveFailed(op, err)
		}
		product = *created
	} else if err := c.api.UpdateProduct(ctx, product); err != nil {
		return nil, c.saveFailed(op, err)
	}

	c.logger.Infow("product saved", "form_id", c.id, "op", op, "product_id", product.ID, "awaited_batches", len(inFlight))
	c.broker.Publish(events.Event{Kind: events.KindSaved, Value: product.ID})
	c.broker.Publish(events.Event{Kind: events.KindNavigate, Value: ListingPath})

	return &Result{Navigate: ListingPath, Product: product}, nil
}

func (c *Controller) operation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.productID == "" {
		return "create"
	}
	return "update"
}

func (c *Controller) saveFailed(op string, err error) error {
	saveErr := &SaveError{Op: op, Err: err}
	c.logger.Errorw("product save failed", "form_id", c.id, "op", op, "error", err)
	c.broker.Publish(events.Event{Kind: events.KindSaveFailed, Error: saveErr.Error()})
	return saveErr
}

// payload builds the product document. Only values of properties that the selected
// category still offers are submitted.
func (c *Controller) payload() models.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	submitted := make(map[string]string)
	for _, name := range properties.Names(properties.Resolve(c.categories, c.category)) {
		if v, ok := c.values[name]; ok {
			submitted[name] = v
		}
	}

	return models.Product{
		ID:          c.productID,
		Title:       c.title,
		Description: c.description,
		Price:       c.price,
		Images:      c.images.Snapshot(),
		Category:    c.category,
		Properties:  submitted,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := make(map[string]string, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}

	return State{
		ID:                  c.id,
		ProductID:           c.productID,
		Title:               c.title,
		Description:         c.description,
		Price:               c.price,
		Category:            c.category,
		Properties:          values,
		AvailableProperties: properties.Resolve(c.categories, c.category),
		Images:              c.images.Snapshot(),
		Uploading:           c.uploads.Uploading(),
		PendingUploads:      c.uploads.PendingFiles(),
	}
}

// Subscribe streams state changes until cancel is called or the form is closed.
func (c *Controller) Subscribe() (<-chan events.Event, func()) {
	return c.broker.Subscribe()
}

// Close ends every subscription. Uploads still running finish in the background.
func (c *Controller) Close() {
	c.broker.Close()
}

func (c *Controller) fieldChanged(field string, value interface{}) {
	c.broker.Publish(events.Event{Kind: events.KindFieldChanged, Field: field, Value: value})
}
