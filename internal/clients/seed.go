package clients

// legacySeed is the client list that predates the directory, grouped by
// category in the order it was kept.
var legacySeed = []NewClient{
	{Name: "LF odontologia", Category: "Negócio Local", Code: "lf-odontologia"},
	{Name: "Trevo Barbearia", Category: "Negócio Local", Code: "trevo-barbearia"},
	{Name: "Cara de Cão", Category: "Negócio Local", Code: "cara-de-cao"},
	{Name: "Criato", Category: "Negócio Local", Code: "criato"},
	{Name: "CN Oftalmologia", Category: "Negócio Local", Code: "cn-oftalmologia"},
	{Name: "BluePack", Category: "Negócio Local", Code: "bluepack"},
	{Name: "FeldHaus Cake", Category: "Negócio Local", Code: "feldhaus-cake"},
	{Name: "Fox GNV", Category: "Negócio Local", Code: "fox-gnv"},
	{Name: "Posto 13", Category: "Negócio Local", Code: "posto-13"},
	{Name: "Ethiene", Category: "Negócio Local", Code: "ethiene"},
	{Name: "Bistrô de Rua", Category: "Negócio Local", Code: "bistro-de-rua"},
	{Name: "Ana Moura", Category: "Negócio Local", Code: "ana-moura"},
	{Name: "Alessandro", Category: "Negócio Local", Code: "alessandro"},

	{Name: "Carolina Falcão", Category: "Infoproduto", Code: "carolina-falcao"},
	{Name: "Fagori investimento", Category: "Infoproduto", Code: "fagori-investimento"},
	{Name: "Gabi Vieira", Category: "Infoproduto", Code: "gabi-vieira"},
	{Name: "Guto Engenheiro", Category: "Infoproduto", Code: "guto-engenheiro"},

	{Name: "Real Parque imóveis", Category: "Inside Sales", Code: "real-parque-imoveis"},
	{Name: "Voe Mais", Category: "Inside Sales", Code: "voe-mais"},
	{Name: "3Haus", Category: "Inside Sales", Code: "3haus"},

	{Name: "Apraioh", Category: "E-commerce", Code: "apraioh"},
	{Name: "Caminho do Surf", Category: "E-commerce", Code: "caminho-do-surf"},
	{Name: "Trevo Tabacaria", Category: "E-commerce", Code: "trevo-tabacaria"},
	{Name: "GPZ", Category: "E-commerce", Code: "gpz"},
	{Name: "Maré Aquariana", Category: "E-commerce", Code: "mare-aquariana"},
}

// Categories lists the known client categories.
var Categories = []string{"Negócio Local", "Infoproduto", "Inside Sales", "E-commerce"}
