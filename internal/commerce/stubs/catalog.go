package stubs

import (
	"github.com/shopspring/decimal"

	"pizzabot/internal/models"
)

// DemoCatalog returns a small pizza menu for local runs
func DemoCatalog(currency string) []models.Product {
	price := func(v int64) models.Money {
		return models.Money{Amount: decimal.NewFromInt(v), Currency: currency}
	}
	return []models.Product{
		{ID: "margherita", Name: "Маргарита", Description: "Томаты, моцарелла, базилик", Price: price(399), ImageID: "margherita"},
		{ID: "pepperoni", Name: "Пепперони", Description: "Пепперони, моцарелла, томатный соус", Price: price(459), ImageID: "pepperoni"},
		{ID: "four-cheese", Name: "Четыре сыра", Description: "Моцарелла, пармезан, дорблю, чеддер", Price: price(519), ImageID: "four-cheese"},
		{ID: "hawaiian", Name: "Гавайская", Description: "Ветчина, ананас, моцарелла", Price: price(449), ImageID: "hawaiian"},
		{ID: "bbq-chicken", Name: "Цыпленок барбекю", Description: "Курица, лук, соус барбекю", Price: price(489), ImageID: "bbq-chicken"},
		{ID: "veggie", Name: "Овощная", Description: "Перец, грибы, оливки, томаты", Price: price(389), ImageID: "veggie"},
		{ID: "meat", Name: "Мясная", Description: "Бекон, ветчина, пепперони, говядина", Price: price(549), ImageID: "meat"},
		{ID: "mushroom", Name: "Грибная", Description: "Шампиньоны, сливочный соус, моцарелла", Price: price(419), ImageID: "mushroom"},
		{ID: "diablo", Name: "Дьябло", Description: "Острая салями, халапеньо, моцарелла", Price: price(479), ImageID: "diablo"},
	}
}

// DemoStores returns two pizzerias in central Moscow
func DemoStores() []models.Store {
	return []models.Store{
		{ID: "arbat", Name: "Пиццерия на Арбате", Address: "ул. Арбат, 10", Location: models.Coordinates{Lon: 37.5961, Lat: 55.7510}},
		{ID: "taganka", Name: "Пиццерия на Таганке", Address: "ул. Таганская, 1", Location: models.Coordinates{Lon: 37.6535, Lat: 55.7416}},
	}
}
