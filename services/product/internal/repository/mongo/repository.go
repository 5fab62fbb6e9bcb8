package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hector-delgado/OrderManagementSystem/services/product/internal/repository"
)

// ProductDocument представляет документ в коллекции MongoDB
type ProductDocument struct {
	ProductID  int64     `bson:"product_id"`
	Name       string    `bson:"name"`
	PriceCents int64     `bson:"price_cents"`
	Stock      int32     `bson:"stock"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// Repository реализует ProductRepository используя MongoDB
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
	col    *mongo.Collection
}

// NewRepository создаёт новый MongoDB репозиторий
// Создаёт уникальный индекс на product_id при инициализации
func NewRepository(client *mongo.Client, dbName string) *Repository {
	db := client.Database(dbName)
	col := db.Collection("products")

	// Уникальный индекс гарантирует один документ на товар
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "product_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Если индекс уже существует - игнорируем ошибку
	_, _ = col.Indexes().CreateOne(ctx, indexModel)

	return &Repository{
		client: client,
		db:     db,
		col:    col,
	}
}

// GetByID возвращает товар из MongoDB
// Возвращает ErrNotFound, если товар не найден
func (r *Repository) GetByID(ctx context.Context, productID int64) (repository.Product, error) {
	var doc ProductDocument
	err := r.col.FindOne(ctx, bson.M{"product_id": productID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return repository.Product{}, repository.ErrNotFound
		}
		return repository.Product{}, err
	}

	return repository.Product{
		ID:         doc.ProductID,
		Name:       doc.Name,
		PriceCents: doc.PriceCents,
		Stock:      doc.Stock,
	}, nil
}

// ReserveStock атомарно списывает остаток товара
// Использует FindOneAndUpdate: проверка stock >= quantity и декремент выполняются
// одной операцией на стороне MongoDB, поэтому два конкурентных запроса на один
// товар не могут оба пройти проверку, которую должен пройти только один
func (r *Repository) ReserveStock(ctx context.Context, productID int64, quantity int32) (repository.ReserveResult, error) {
	filter := bson.M{
		"product_id": productID,
		"stock":      bson.M{"$gte": quantity},
	}

	update := bson.M{
		"$inc": bson.M{"stock": -quantity},
		"$set": bson.M{"updated_at": time.Now()},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After) // вернуть документ после обновления

	var updatedDoc ProductDocument
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updatedDoc)
	if err == nil {
		return repository.ReserveResult{
			Applied:    true,
			Stock:      updatedDoc.Stock,
			PriceCents: updatedDoc.PriceCents,
		}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ReserveResult{}, err
	}

	// Документ не подошёл под фильтр: либо товара нет, либо stock < quantity.
	// Перечитываем товар, чтобы их различить и вернуть неизменённый остаток и цену.
	product, err := r.GetByID(ctx, productID)
	if err != nil {
		return repository.ReserveResult{}, err
	}

	return repository.ReserveResult{
		Applied:    false,
		Stock:      product.Stock,
		PriceCents: product.PriceCents,
	}, nil
}
