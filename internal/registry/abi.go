package registry

// identityABI is the read surface of the ERC-8004 identity registry.
const identityABI = `[
	{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"agentId","type":"uint256"}],"name":"getAgentWallet","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// reputationABI is the read surface of the ERC-8004 reputation registry.
const reputationABI = `[
	{"inputs":[
		{"name":"agentId","type":"uint256"},
		{"name":"clientAddresses","type":"address[]"},
		{"name":"tag1","type":"string"},
		{"name":"tag2","type":"string"}
	],"name":"getSummary","outputs":[
		{"name":"count","type":"uint64"},
		{"name":"summaryValue","type":"int128"},
		{"name":"summaryValueDecimals","type":"uint8"}
	],"stateMutability":"view","type":"function"}
]`

const (
	methodTotalSupply = "totalSupply"
	methodTokenURI    = "tokenURI"
	methodWallet      = "getAgentWallet"
	methodSummary     = "getSummary"
)
