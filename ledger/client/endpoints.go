package client

// API 端点常量
const (
	// Memes
	EndpointListMemes     = "/memes"
	EndpointGetMeme       = "/memes/%s"
	EndpointUpvote        = "/memes/%s/upvote"
	EndpointDownvote      = "/memes/%s/downvote"
	EndpointGetCategories = "/memes/categories"
	EndpointTrending      = "/memes/trending"
	EndpointGetByTicker   = "/memes/ticker/%s"

	// Trading
	EndpointBuy         = "/trading/buy"
	EndpointSell        = "/trading/sell"
	EndpointBalance     = "/trading/balance"
	EndpointPortfolio   = "/trading/portfolio"
	EndpointCancelOrder = "/trading/orders/%s/cancel"
	EndpointHistory     = "/trading/history"
)

// DefaultBaseURL 本地开发账本地址
const DefaultBaseURL = "http://localhost:8000/api"
