package catalog

// DefaultProducts seeds a fresh catalog. Both segments share the list; the
// credit line decides what is actually offered.
func DefaultProducts() []Product {
	return []Product{
		{ID: "cel-a15", Name: "Galaxy A15", Brand: "Samsung", Category: "celulares", Price: 799, ImagePath: "images/celulares/galaxy-a15.jpg"},
		{ID: "cel-redmi13", Name: "Redmi 13", Brand: "Xiaomi", Category: "celulares", Price: 649, ImagePath: "images/celulares/redmi-13.jpg"},
		{ID: "cel-moto-g54", Name: "Moto G54", Brand: "Motorola", Category: "celulares", Price: 899, ImagePath: "images/celulares/moto-g54.jpg"},
		{ID: "tv-lg-50", Name: "Smart TV 50\" UHD", Brand: "LG", Category: "televisores", Price: 1599, ImagePath: "images/televisores/lg-50.jpg"},
		{ID: "tv-tcl-43", Name: "Smart TV 43\" FHD", Brand: "TCL", Category: "televisores", Price: 1099, ImagePath: "images/televisores/tcl-43.jpg"},
		{ID: "ref-mabe-300", Name: "Refrigeradora 300L", Brand: "Mabe", Category: "refrigeradoras", Price: 1899, ImagePath: "images/refrigeradoras/mabe-300.jpg"},
		{ID: "ref-lg-420", Name: "Refrigeradora 420L Inverter", Brand: "LG", Category: "refrigeradoras", Price: 2999, ImagePath: "images/refrigeradoras/lg-420.jpg"},
		{ID: "lav-samsung-17", Name: "Lavadora 17kg", Brand: "Samsung", Category: "lavadoras", Price: 1799, ImagePath: "images/lavadoras/samsung-17.jpg"},
		{ID: "coc-indurama-4", Name: "Cocina 4 hornillas", Brand: "Indurama", Category: "cocinas", Price: 899, ImagePath: "images/cocinas/indurama-4.jpg"},
		{ID: "lap-lenovo-ip3", Name: "IdeaPad 3 Ryzen 5", Brand: "Lenovo", Category: "laptops", Price: 2199, ImagePath: "images/laptops/lenovo-ip3.jpg"},
		{ID: "lap-hp-15", Name: "HP 15 Core i5", Brand: "HP", Category: "laptops", Price: 2499, ImagePath: "images/laptops/hp-15.jpg"},
		{ID: "col-paraiso-2p", Name: "Colchón 2 plazas", Brand: "Paraíso", Category: "colchones", Price: 699, ImagePath: "images/colchones/paraiso-2p.jpg"},
	}
}
